package conda

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
)

// ActivationStep makes new login shells activate the environment and
// checks the activation marker conda sets.
type ActivationStep struct {
	cfg    Config
	id     sequence.StepID
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewActivationStep creates a new ActivationStep.
func NewActivationStep(cfg Config, runner ports.CommandRunner, fs ports.FileSystem) *ActivationStep {
	return &ActivationStep{
		cfg:    cfg,
		id:     sequence.MustNewStepID("conda:activate:" + cfg.Env),
		runner: runner,
		fs:     fs,
	}
}

// ID returns the step identifier.
func (s *ActivationStep) ID() sequence.StepID {
	return s.id
}

// Requires returns nothing; conda is called by absolute path.
func (s *ActivationStep) Requires() []string {
	return nil
}

// Check reports whether the startup file already activates the environment.
func (s *ActivationStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	if facts := ctx.Facts(); facts != nil && facts.ActiveEnvironment() == s.cfg.Env {
		ctx.Logger().Debug(ctx.Context(), "environment already active in this shell", ports.F("env", s.cfg.Env))
	}
	if s.hasActivateLine() {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply appends the activate line to the startup file.
func (s *ActivationStep) Apply(_ sequence.RunContext) error {
	data, err := s.fs.ReadFile(s.cfg.RCFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", s.cfg.RCFile, err)
	}
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		data = append(data, '\n')
	}
	data = append(data, []byte(s.activateLine()+"\n")...)
	return s.fs.WriteFile(s.cfg.RCFile, data, 0o644)
}

// Verify runs a command inside the environment and compares the
// CONDA_DEFAULT_ENV marker with the expected name.
func (s *ActivationStep) Verify(ctx sequence.RunContext) error {
	if !s.hasActivateLine() {
		return fmt.Errorf("%s does not activate %s", s.cfg.RCFile, s.cfg.Env)
	}
	result, err := commandutil.Exec(ctx.Context(), s.runner, s.cfg.CondaBin(),
		"run", "-n", s.cfg.Env, "printenv", "CONDA_DEFAULT_ENV")
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(result.Stdout); got != s.cfg.Env {
		return fmt.Errorf("activation marker CONDA_DEFAULT_ENV=%q, expected %q", got, s.cfg.Env)
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *ActivationStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"activate conda env "+s.cfg.Env,
		fmt.Sprintf("Adds %q to %s.", s.activateLine(), s.cfg.RCFile),
	)
}

func (s *ActivationStep) activateLine() string {
	return "conda activate " + s.cfg.Env
}

func (s *ActivationStep) hasActivateLine() bool {
	data, err := s.fs.ReadFile(s.cfg.RCFile)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == s.activateLine() {
			return true
		}
	}
	return false
}

var _ sequence.Step = (*ActivationStep)(nil)
