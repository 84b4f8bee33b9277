package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// LaunchStep starts the inference server detached from this process. The
// step succeeds once the process is still alive after the grace period; it
// does not wait for the server to become ready.
type LaunchStep struct {
	cfg      Config
	id       sequence.StepID
	launcher ports.ProcessLauncher
	fs       ports.FileSystem
	handle   ports.ProcessHandle
}

// NewLaunchStep creates a new LaunchStep.
func NewLaunchStep(cfg Config, launcher ports.ProcessLauncher, fs ports.FileSystem) *LaunchStep {
	return &LaunchStep{
		cfg:      cfg,
		id:       sequence.MustNewStepID("service:launch:" + cfg.Name),
		launcher: launcher,
		fs:       fs,
	}
}

// ID returns the step identifier.
func (s *LaunchStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the executable when it has to be found on PATH.
func (s *LaunchStep) Requires() []string {
	if filepath.IsAbs(s.cfg.Executable) {
		return nil
	}
	return []string{s.cfg.Executable}
}

// Check reports whether the pidfile names a live process. A stale pidfile
// means the server has to be started again.
func (s *LaunchStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	st, err := Inspect(s.cfg, s.launcher, s.fs)
	if err != nil {
		ctx.Logger().Warn(ctx.Context(), "ignoring unreadable pidfile", ports.F("path", s.cfg.PIDFile()), ports.Err(err))
		return sequence.StatusNeedsApply, nil
	}
	if st.Alive {
		s.handle = ports.ProcessHandle{PID: st.PID, LogPath: st.LogFile}
		return sequence.StatusSatisfied, nil
	}
	switch {
	case st.Reused:
		ctx.Logger().Warn(ctx.Context(), "recorded pid now runs another program", ports.F("pid", st.PID))
	case st.PID != 0:
		ctx.Logger().Info(ctx.Context(), "recorded process is gone", ports.F("pid", st.PID))
	}
	return sequence.StatusNeedsApply, nil
}

// Apply launches the server and records its PID.
func (s *LaunchStep) Apply(ctx sequence.RunContext) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	tp := s.cfg.Server.TensorParallelSize
	if tp == 0 {
		facts := ctx.Facts()
		if facts == nil {
			return fmt.Errorf("tensor_parallel_size is unset and no accelerator count is available")
		}
		n, err := facts.AcceleratorCount(ctx.Context())
		if err != nil {
			return err
		}
		tp = n
	}

	if err := s.fs.MkdirAll(s.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	handle, err := s.launcher.Launch(ctx.Context(), ports.ProcessSpec{
		Command: s.cfg.Executable,
		Args:    s.cfg.Server.Args(s.cfg.Entrypoint, tp),
		LogPath: s.cfg.LogFile(),
	})
	if err != nil {
		return err
	}
	s.handle = handle
	ctx.Logger().Info(ctx.Context(), "server started", ports.F("pid", handle.PID), ports.F("log", handle.LogPath))

	return s.fs.WriteFile(s.cfg.PIDFile(), []byte(strconv.Itoa(handle.PID)+"\n"), 0o644)
}

// Verify waits for the grace period and checks that the process survived.
// A dead process is an action failure carrying the tail of its log. The
// wait is not cut short when the run is cancelled.
func (s *LaunchStep) Verify(ctx sequence.RunContext) error {
	alive, err := s.launcher.ProbeAlive(context.WithoutCancel(ctx.Context()), s.handle, s.cfg.Grace)
	if err != nil {
		return err
	}
	if alive {
		return nil
	}

	_ = s.fs.Remove(s.cfg.PIDFile())
	return sequence.NewActionFailedError(s.id.String(),
		fmt.Errorf("process %d exited within %s", s.handle.PID, s.cfg.Grace)).
		WithOutput(Tail(s.fs, s.cfg.LogFile(), tailLines)).
		WithSuggestion("Read the server log above; out-of-memory and a wrong model path are the usual causes.")
}

// Explain provides a human-readable explanation.
func (s *LaunchStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"launch "+s.cfg.Name,
		fmt.Sprintf("Starts %s serving %s on %s:%d, logging to %s.",
			s.cfg.Executable, s.cfg.Server.Model, s.cfg.Server.Host, s.cfg.Server.Port, s.cfg.LogFile()),
	)
}

// Report tells the operator where the server logs and how to stop it.
func (s *LaunchStep) Report() []string {
	return []string{
		fmt.Sprintf("%s is running with pid %d, listening on %s:%d", s.cfg.Name, s.handle.PID, s.cfg.Server.Host, s.cfg.Server.Port),
		"logs: tail -f " + s.cfg.LogFile(),
		fmt.Sprintf("stop: gpuprep stop (or kill -TERM -%d)", s.handle.PID),
	}
}

var (
	_ sequence.Step     = (*LaunchStep)(nil)
	_ sequence.Reporter = (*LaunchStep)(nil)
)
