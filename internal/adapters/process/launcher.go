// Package process starts long-running services detached from the calling
// session and inspects them afterwards by PID.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Launcher implements ports.ProcessLauncher for the local host.
//
// A child started by this process becomes a zombie when it exits until it
// is reaped, and a zombie still answers signal 0. Launcher therefore reaps
// every child it starts and remembers which ones have exited.
type Launcher struct {
	mu     sync.Mutex
	exited map[int]error
	now    func() time.Time
}

// NewLauncher creates a new Launcher.
func NewLauncher() *Launcher {
	return &Launcher{
		exited: make(map[int]error),
		now:    time.Now,
	}
}

// Launch starts spec detached, with stdout and stderr appended to
// spec.LogPath, and returns as soon as the process exists.
func (l *Launcher) Launch(ctx context.Context, spec ports.ProcessSpec) (ports.ProcessHandle, error) {
	if spec.LogPath == "" {
		return ports.ProcessHandle{}, fmt.Errorf("launch %s: log path is required", spec.Command)
	}
	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
		return ports.ProcessHandle{}, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return ports.ProcessHandle{}, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	// The service must outlive ctx, so it is not bound to it.
	cmd := exec.Command(spec.Command, spec.Args...) //nolint:gosec,noctx // command built from validated manifest
	cmd.Dir = spec.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	detach(cmd)

	if err := ctx.Err(); err != nil {
		return ports.ProcessHandle{}, err
	}
	if err := cmd.Start(); err != nil {
		return ports.ProcessHandle{}, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	pid := cmd.Process.Pid
	go l.reap(pid, cmd)

	return ports.ProcessHandle{
		PID:       pid,
		LogPath:   spec.LogPath,
		StartedAt: l.now(),
	}, nil
}

func (l *Launcher) reap(pid int, cmd *exec.Cmd) {
	err := cmd.Wait()
	l.mu.Lock()
	l.exited[pid] = err
	l.mu.Unlock()
}

// pollInterval is how often ProbeAlive looks for an early exit.
const pollInterval = 100 * time.Millisecond

// ProbeAlive waits up to after and reports whether the process is still
// running. It returns early once the process has exited. Cancelling ctx
// does not shorten the wait.
func (l *Launcher) ProbeAlive(_ context.Context, handle ports.ProcessHandle, after time.Duration) (bool, error) {
	deadline := time.NewTimer(after)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-deadline.C:
			return l.Alive(handle.PID), nil
		case <-tick.C:
			if !l.Alive(handle.PID) {
				return false, nil
			}
		}
	}
}

// Alive reports whether pid refers to a running process.
func (l *Launcher) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	l.mu.Lock()
	_, gone := l.exited[pid]
	l.mu.Unlock()
	if gone {
		return false
	}
	return signalZero(pid)
}

// Stop asks the process group of pid to terminate.
func (l *Launcher) Stop(pid int) error {
	if !l.Alive(pid) {
		return fmt.Errorf("process %d is not running", pid)
	}
	return terminate(pid)
}

var _ ports.ProcessLauncher = (*Launcher)(nil)
