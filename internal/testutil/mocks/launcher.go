package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Launcher is a test double for ports.ProcessLauncher.
// Launched processes are alive unless DieAfterLaunch was set.
type Launcher struct {
	mu        sync.Mutex
	nextPID   int
	alive     map[int]bool
	launched  []ports.ProcessSpec
	stopped   []int
	launchErr error
	die       bool
	onLaunch  func(ports.ProcessSpec)
}

// NewLauncher creates a new Launcher mock.
func NewLauncher() *Launcher {
	return &Launcher{
		nextPID: 4242,
		alive:   make(map[int]bool),
	}
}

// FailLaunch makes every Launch return err.
func (l *Launcher) FailLaunch(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErr = err
}

// DieAfterLaunch makes launched processes exit before the grace period ends.
func (l *Launcher) DieAfterLaunch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.die = true
}

// OnLaunch registers a side effect, e.g. writing the service log.
func (l *Launcher) OnLaunch(fn func(ports.ProcessSpec)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLaunch = fn
}

// SetAlive marks an arbitrary PID as running or not.
func (l *Launcher) SetAlive(pid int, alive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alive[pid] = alive
}

// Launch records the spec and returns a fresh handle.
func (l *Launcher) Launch(_ context.Context, spec ports.ProcessSpec) (ports.ProcessHandle, error) {
	l.mu.Lock()
	if l.launchErr != nil {
		err := l.launchErr
		l.mu.Unlock()
		return ports.ProcessHandle{}, err
	}
	pid := l.nextPID
	l.nextPID++
	l.alive[pid] = !l.die
	l.launched = append(l.launched, spec)
	hook := l.onLaunch
	l.mu.Unlock()

	if hook != nil {
		hook(spec)
	}
	return ports.ProcessHandle{PID: pid, LogPath: spec.LogPath, StartedAt: time.Now()}, nil
}

// ProbeAlive reports liveness immediately; the delay is not simulated.
func (l *Launcher) ProbeAlive(_ context.Context, handle ports.ProcessHandle, _ time.Duration) (bool, error) {
	return l.Alive(handle.PID), nil
}

// Alive reports whether pid is running.
func (l *Launcher) Alive(pid int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive[pid]
}

// Stop marks pid as stopped.
func (l *Launcher) Stop(pid int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.alive[pid] {
		return errors.New("process not running")
	}
	l.alive[pid] = false
	l.stopped = append(l.stopped, pid)
	return nil
}

// Launched returns every spec passed to Launch.
func (l *Launcher) Launched() []ports.ProcessSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	specs := make([]ports.ProcessSpec, len(l.launched))
	copy(specs, l.launched)
	return specs
}

// Stopped returns every PID passed to a successful Stop.
func (l *Launcher) Stopped() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.stopped...)
}

// Ensure Launcher implements ports.ProcessLauncher.
var _ ports.ProcessLauncher = (*Launcher)(nil)
