package conda

import (
	"bytes"
	"fmt"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
)

// initMarker is the opening line conda writes into shell startup files.
const initMarker = ">>> conda initialize >>>"

// InitStep hooks conda into the bash startup file. A failure here leaves
// the environment usable through "conda run", so the step is best-effort
// unless the manifest says otherwise.
type InitStep struct {
	cfg    Config
	id     sequence.StepID
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewInitStep creates a new InitStep.
func NewInitStep(cfg Config, runner ports.CommandRunner, fs ports.FileSystem) *InitStep {
	return &InitStep{
		cfg:    cfg,
		id:     sequence.MustNewStepID("conda:init:bash"),
		runner: runner,
		fs:     fs,
	}
}

// ID returns the step identifier.
func (s *InitStep) ID() sequence.StepID {
	return s.id
}

// Requires returns nothing; conda is called by absolute path.
func (s *InitStep) Requires() []string {
	return nil
}

// BestEffortByDefault marks the step as tolerated on failure.
func (s *InitStep) BestEffortByDefault() bool {
	return true
}

// Check reports whether the startup file already carries the conda block.
func (s *InitStep) Check(_ sequence.RunContext) (sequence.StepStatus, error) {
	if s.initialized() {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply runs conda init for bash.
func (s *InitStep) Apply(ctx sequence.RunContext) error {
	_, err := commandutil.Exec(ctx.Context(), s.runner, s.cfg.CondaBin(), "init", "bash")
	return err
}

// Verify checks the startup file again.
func (s *InitStep) Verify(_ sequence.RunContext) error {
	if !s.initialized() {
		return fmt.Errorf("%s has no conda initialize block", s.cfg.RCFile)
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *InitStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"initialize conda for bash",
		fmt.Sprintf("Runs conda init bash so that %s sets up conda in new shells.", s.cfg.RCFile),
	)
}

func (s *InitStep) initialized() bool {
	data, err := s.fs.ReadFile(s.cfg.RCFile)
	if err != nil {
		return false
	}
	return bytes.Contains(data, []byte(initMarker))
}

var _ sequence.Step = (*InitStep)(nil)
