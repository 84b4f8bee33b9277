package conda

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
)

// InstallerStep downloads the Miniconda installer and runs it in batch mode
// unless conda already exists under the prefix.
type InstallerStep struct {
	cfg    Config
	id     sequence.StepID
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewInstallerStep creates a new InstallerStep.
func NewInstallerStep(cfg Config, runner ports.CommandRunner, fs ports.FileSystem) *InstallerStep {
	return &InstallerStep{
		cfg:    cfg,
		id:     sequence.MustNewStepID("conda:install:" + filepath.Base(cfg.Prefix)),
		runner: runner,
		fs:     fs,
	}
}

// ID returns the step identifier.
func (s *InstallerStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the executables the step runs.
func (s *InstallerStep) Requires() []string {
	return []string{"curl", "bash"}
}

// Check reports whether the conda binary is present under the prefix.
func (s *InstallerStep) Check(_ sequence.RunContext) (sequence.StepStatus, error) {
	if s.fs.Exists(s.cfg.CondaBin()) {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply downloads the installer next to the prefix and runs it.
func (s *InstallerStep) Apply(ctx sequence.RunContext) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	installer := s.installerPath()
	if _, err := commandutil.Exec(ctx.Context(), s.runner, "curl", "-fsSL", "-o", installer, s.cfg.InstallerURL); err != nil {
		return err
	}
	defer func() {
		if err := s.fs.Remove(installer); err != nil && !errors.Is(err, os.ErrNotExist) {
			ctx.Logger().Warn(ctx.Context(), "could not remove installer", ports.F("path", installer), ports.F(ports.KeyError, err))
		}
	}()

	// -b runs unattended, -u updates a partial prefix left by an earlier attempt.
	_, err := commandutil.Exec(ctx.Context(), s.runner, "bash", installer, "-b", "-u", "-p", s.cfg.Prefix)
	return err
}

// Verify runs the installed conda binary.
func (s *InstallerStep) Verify(ctx sequence.RunContext) error {
	if !s.fs.Exists(s.cfg.CondaBin()) {
		return fmt.Errorf("installer finished but %s is missing", s.cfg.CondaBin())
	}
	_, err := commandutil.Exec(ctx.Context(), s.runner, s.cfg.CondaBin(), "--version")
	return err
}

// Explain provides a human-readable explanation.
func (s *InstallerStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"install miniconda",
		fmt.Sprintf("Downloads %s and installs it into %s.", s.cfg.InstallerURL, s.cfg.Prefix),
	)
}

func (s *InstallerStep) installerPath() string {
	return filepath.Join(filepath.Dir(s.cfg.Prefix), "miniconda-installer.sh")
}

var _ sequence.Step = (*InstallerStep)(nil)
