package ports

import (
	"context"
	"time"
)

// ProcessSpec describes a long-running process to start detached from
// the controlling session.
type ProcessSpec struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
	LogPath string
}

// ProcessHandle is the only link kept to a detached process after launch.
type ProcessHandle struct {
	PID       int
	LogPath   string
	StartedAt time.Time
}

// ProcessLauncher starts detached processes and inspects them afterwards.
// Launch only starts the process; ProbeAlive reports whether it is still
// present after the given delay.
type ProcessLauncher interface {
	Launch(ctx context.Context, spec ProcessSpec) (ProcessHandle, error)
	ProbeAlive(ctx context.Context, handle ProcessHandle, after time.Duration) (bool, error)
	Alive(pid int) bool
	Stop(pid int) error
}
