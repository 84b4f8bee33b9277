package conda

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
	"github.com/felixgeelhaar/gpuprep/internal/provider/versionutil"
)

// EnvStep creates a named environment with a pinned interpreter version.
type EnvStep struct {
	cfg    Config
	id     sequence.StepID
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewEnvStep creates a new EnvStep.
func NewEnvStep(cfg Config, runner ports.CommandRunner, fs ports.FileSystem) *EnvStep {
	return &EnvStep{
		cfg:    cfg,
		id:     sequence.MustNewStepID("conda:env:" + cfg.Env),
		runner: runner,
		fs:     fs,
	}
}

// ID returns the step identifier.
func (s *EnvStep) ID() sequence.StepID {
	return s.id
}

// Requires returns nothing; conda is called by absolute path.
func (s *EnvStep) Requires() []string {
	return nil
}

// Check reports whether conda already lists the environment. The
// interpreter version is only enforced after creation; an existing
// environment is never recreated. Without a conda binary the installer
// has not run yet and the environment cannot exist.
func (s *EnvStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	if !s.fs.Exists(s.cfg.CondaBin()) {
		return sequence.StatusNeedsApply, nil
	}
	exists, err := envExists(ctx, s.runner, s.cfg)
	if err != nil {
		return sequence.StatusUnknown, err
	}
	if exists {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply creates the environment.
func (s *EnvStep) Apply(ctx sequence.RunContext) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	_, err := commandutil.Exec(ctx.Context(), s.runner, s.cfg.CondaBin(),
		"create", "-y", "-n", s.cfg.Env, "python="+s.cfg.Python)
	return err
}

// Verify checks that the environment is listed and runs the requested
// interpreter version.
func (s *EnvStep) Verify(ctx sequence.RunContext) error {
	exists, err := envExists(ctx, s.runner, s.cfg)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("environment %q not listed by conda after create", s.cfg.Env)
	}

	result, err := commandutil.Exec(ctx.Context(), s.runner, s.cfg.CondaBin(),
		"run", "-n", s.cfg.Env, "python", "--version")
	if err != nil {
		return err
	}
	// Older interpreters print the version on stderr.
	got := result.Stdout + result.Stderr
	if !versionutil.SameMajorMinor(got, s.cfg.Python) {
		return fmt.Errorf("environment %q runs python %q, expected %s",
			s.cfg.Env, versionutil.MajorMinor(got), s.cfg.Python)
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *EnvStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"create conda env "+s.cfg.Env,
		fmt.Sprintf("Creates environment %s with python %s.", s.cfg.Env, s.cfg.Python),
	)
}

type envList struct {
	Envs []string `json:"envs"`
}

// envExists asks conda for its environments and matches them by directory
// name, which is what "conda create -n" uses.
func envExists(ctx sequence.RunContext, runner ports.CommandRunner, cfg Config) (bool, error) {
	result, err := commandutil.Exec(ctx.Context(), runner, cfg.CondaBin(), "env", "list", "--json")
	if err != nil {
		return false, err
	}
	var list envList
	if err := json.Unmarshal([]byte(result.Stdout), &list); err != nil {
		return false, fmt.Errorf("parse conda env list: %w", err)
	}
	return lo.ContainsBy(list.Envs, func(path string) bool {
		return filepath.Base(path) == cfg.Env
	}), nil
}

var _ sequence.Step = (*EnvStep)(nil)
