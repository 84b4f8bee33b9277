package git

import (
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
)

// CloneStep clones a repository unless its destination directory exists.
type CloneStep struct {
	cfg    Config
	id     sequence.StepID
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewCloneStep creates a new CloneStep.
func NewCloneStep(cfg Config, runner ports.CommandRunner, fs ports.FileSystem) *CloneStep {
	return &CloneStep{
		cfg:    cfg,
		id:     sequence.MustNewStepID("git:clone:" + filepath.Base(cfg.Dest)),
		runner: runner,
		fs:     fs,
	}
}

// ID returns the step identifier.
func (s *CloneStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the executables the step runs.
func (s *CloneStep) Requires() []string {
	return []string{"git"}
}

// Check reports whether the destination directory already exists.
func (s *CloneStep) Check(_ sequence.RunContext) (sequence.StepStatus, error) {
	if s.fs.IsDir(s.cfg.Dest) {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply performs a shallow clone.
func (s *CloneStep) Apply(ctx sequence.RunContext) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	args := []string{"clone", "--depth", "1"}
	if s.cfg.Ref != "" {
		args = append(args, "--branch", s.cfg.Ref)
	}
	args = append(args, "--", s.cfg.URL, s.cfg.Dest)

	_, err := commandutil.Exec(ctx.Context(), s.runner, "git", args...)
	return err
}

// Verify checks that the destination is a git work tree.
func (s *CloneStep) Verify(_ sequence.RunContext) error {
	if !s.fs.Exists(filepath.Join(s.cfg.Dest, ".git")) {
		return fmt.Errorf("%s is not a git repository after clone", s.cfg.Dest)
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *CloneStep) Explain() sequence.Explanation {
	detail := fmt.Sprintf("Clones %s into %s.", s.cfg.URL, s.cfg.Dest)
	if s.cfg.Ref != "" {
		detail = fmt.Sprintf("Clones %s at %s into %s.", s.cfg.URL, s.cfg.Ref, s.cfg.Dest)
	}
	return sequence.NewExplanation("clone "+filepath.Base(s.cfg.Dest), detail)
}

var _ sequence.Step = (*CloneStep)(nil)
