package apt

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// PackagesStep installs a set of apt packages in one transaction.
type PackagesStep struct {
	packages []string
	update   bool
	id       sequence.StepID
	runner   ports.CommandRunner
}

// NewPackagesStep creates a new PackagesStep.
func NewPackagesStep(packages []string, update bool, runner ports.CommandRunner) *PackagesStep {
	return &PackagesStep{
		packages: packages,
		update:   update,
		id:       sequence.MustNewStepID("apt:packages:system"),
		runner:   runner,
	}
}

// ID returns the step identifier.
func (s *PackagesStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the executables the step runs.
func (s *PackagesStep) Requires() []string {
	return []string{"dpkg-query", "apt-get", "sudo"}
}

// Check reports whether every package is already installed.
func (s *PackagesStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	missing, err := s.missing(ctx)
	if err != nil {
		return sequence.StatusUnknown, err
	}
	if len(missing) == 0 {
		return sequence.StatusSatisfied, nil
	}
	ctx.Logger().Debug(ctx.Context(), "packages not installed", ports.F("packages", strings.Join(missing, " ")))
	return sequence.StatusNeedsApply, nil
}

// Apply installs the packages non-interactively.
func (s *PackagesStep) Apply(ctx sequence.RunContext) error {
	for _, pkg := range s.packages {
		if err := validation.ValidatePackageName(pkg); err != nil {
			return fmt.Errorf("invalid package name: %w", err)
		}
	}

	if s.update {
		if _, err := commandutil.Exec(ctx.Context(), s.runner, "sudo", "apt-get", "update"); err != nil {
			return err
		}
	}

	args := append([]string{"DEBIAN_FRONTEND=noninteractive", "apt-get", "install", "-y"}, s.packages...)
	_, err := commandutil.Exec(ctx.Context(), s.runner, "sudo", args...)
	return err
}

// Verify re-queries dpkg for every package.
func (s *PackagesStep) Verify(ctx sequence.RunContext) error {
	missing, err := s.missing(ctx)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("packages still not installed: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *PackagesStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"install system packages",
		fmt.Sprintf("Installs %s with apt-get.", strings.Join(s.packages, ", ")),
	)
}

// missing returns the packages dpkg does not report as installed.
func (s *PackagesStep) missing(ctx sequence.RunContext) ([]string, error) {
	names := make([]string, len(s.packages))
	for i, pkg := range s.packages {
		names[i] = packageName(pkg)
	}

	args := append([]string{"-W", "-f=${Package}\t${db:Status-Status}\n"}, names...)
	// dpkg-query exits 1 when some package is unknown but still lists the rest.
	result, err := s.runner.Run(ctx.Context(), "dpkg-query", args...)
	if err != nil {
		return nil, err
	}

	installed := make(map[string]bool)
	for _, line := range strings.Split(result.Stdout, "\n") {
		name, status, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		// Multi-arch packages are listed as name:arch.
		name, _, _ = strings.Cut(name, ":")
		if status == "installed" {
			installed[name] = true
		}
	}

	var missing []string
	for _, name := range names {
		if !installed[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

var _ sequence.Step = (*PackagesStep)(nil)
