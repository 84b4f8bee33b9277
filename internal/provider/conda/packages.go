package conda

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// PackagesStep installs Python packages into the environment with pip.
type PackagesStep struct {
	cfg    Config
	id     sequence.StepID
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewPackagesStep creates a new PackagesStep.
func NewPackagesStep(cfg Config, runner ports.CommandRunner, fs ports.FileSystem) *PackagesStep {
	return &PackagesStep{
		cfg:    cfg,
		id:     sequence.MustNewStepID("conda:packages:" + cfg.Env),
		runner: runner,
		fs:     fs,
	}
}

// ID returns the step identifier.
func (s *PackagesStep) ID() sequence.StepID {
	return s.id
}

// Requires returns nothing; conda is called by absolute path.
func (s *PackagesStep) Requires() []string {
	return nil
}

// Check reports whether pip knows every package. Version specifiers are
// not compared; an installed distribution satisfies its requirement. An
// environment that has not been created yet has nothing installed.
func (s *PackagesStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	if !s.fs.Exists(s.cfg.CondaBin()) || !s.fs.IsDir(s.cfg.EnvDir()) {
		return sequence.StatusNeedsApply, nil
	}
	ok, err := s.installed(ctx)
	if err != nil {
		return sequence.StatusUnknown, err
	}
	if ok {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply runs pip install inside the environment.
func (s *PackagesStep) Apply(ctx sequence.RunContext) error {
	for _, pkg := range s.cfg.Packages {
		if err := validation.ValidatePipPackage(pkg); err != nil {
			return err
		}
	}
	args := append([]string{"run", "-n", s.cfg.Env, "pip", "install"}, s.cfg.Packages...)
	_, err := commandutil.Exec(ctx.Context(), s.runner, s.cfg.CondaBin(), args...)
	return err
}

// Verify asks pip again.
func (s *PackagesStep) Verify(ctx sequence.RunContext) error {
	ok, err := s.installed(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pip does not report %s as installed in %s", strings.Join(s.names(), ", "), s.cfg.Env)
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *PackagesStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"install python packages",
		fmt.Sprintf("Installs %s into %s with pip.", strings.Join(s.cfg.Packages, ", "), s.cfg.Env),
	)
}

func (s *PackagesStep) names() []string {
	return lo.Map(s.cfg.Packages, func(pkg string, _ int) string {
		return validation.PipPackageName(pkg)
	})
}

// installed runs pip show, which exits non-zero when any package is missing.
func (s *PackagesStep) installed(ctx sequence.RunContext) (bool, error) {
	args := append([]string{"run", "-n", s.cfg.Env, "pip", "show", "-q"}, s.names()...)
	ok, _, err := commandutil.Probe(ctx.Context(), s.runner, s.cfg.CondaBin(), args...)
	return ok, err
}

var _ sequence.Step = (*PackagesStep)(nil)
