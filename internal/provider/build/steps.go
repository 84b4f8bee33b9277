package build

import (
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
)

// MakeStep runs make in a directory unless the artifact already exists.
type MakeStep struct {
	cfg    Config
	id     sequence.StepID
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewMakeStep creates a new MakeStep.
func NewMakeStep(cfg Config, runner ports.CommandRunner, fs ports.FileSystem) *MakeStep {
	return &MakeStep{
		cfg:    cfg,
		id:     sequence.MustNewStepID("build:make:" + filepath.Base(cfg.Dir)),
		runner: runner,
		fs:     fs,
	}
}

// ID returns the step identifier.
func (s *MakeStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the executables the step runs.
func (s *MakeStep) Requires() []string {
	return []string{"make"}
}

// Check reports whether the artifact exists.
func (s *MakeStep) Check(_ sequence.RunContext) (sequence.StepStatus, error) {
	if s.fs.Exists(s.cfg.ArtifactPath()) {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply runs make -C dir with the configured arguments.
func (s *MakeStep) Apply(ctx sequence.RunContext) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	args := append([]string{"-C", s.cfg.Dir}, s.cfg.Args...)
	_, err := commandutil.Exec(ctx.Context(), s.runner, "make", args...)
	return err
}

// Verify checks that the build produced the artifact.
func (s *MakeStep) Verify(_ sequence.RunContext) error {
	if !s.fs.Exists(s.cfg.ArtifactPath()) {
		return fmt.Errorf("build finished but %s is missing", s.cfg.ArtifactPath())
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *MakeStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"build "+filepath.Base(s.cfg.Dir),
		fmt.Sprintf("Runs make in %s to produce %s.", s.cfg.Dir, s.cfg.Artifact),
	)
}

var _ sequence.Step = (*MakeStep)(nil)
