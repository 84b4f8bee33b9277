package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// tailLines is how much of the server log is surfaced on failure.
const tailLines = 40

// ErrNotRunning is returned by Stop when no live process is recorded.
var ErrNotRunning = errors.New("service is not running")

// Status describes a launched service as seen through its pidfile.
type Status struct {
	Name    string
	PID     int
	Alive   bool
	PIDFile string
	LogFile string
	// Reused is set when the recorded PID is alive but runs another program.
	Reused bool
}

// Inspect reads the pidfile and checks whether the recorded PID is alive.
// A missing pidfile yields a zero PID and no error.
func Inspect(cfg Config, launcher ports.ProcessLauncher, fs ports.FileSystem) (Status, error) {
	st := Status{Name: cfg.Name, PIDFile: cfg.PIDFile(), LogFile: cfg.LogFile()}
	pid, err := readPID(fs, cfg.PIDFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	st.PID = pid
	st.Alive = launcher.Alive(pid)
	if st.Alive && !runsExecutable(fs, pid, cfg.Executable) {
		st.Alive = false
		st.Reused = true
	}
	return st, nil
}

// runsExecutable reports whether the command line of pid names executable,
// either as the program or as the script an interpreter runs. Without a
// readable /proc entry the PID is trusted.
func runsExecutable(fs ports.FileSystem, pid int, executable string) bool {
	data, err := fs.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil || len(data) == 0 {
		return true
	}
	want := filepath.Base(executable)
	for _, arg := range strings.Split(strings.TrimRight(string(data), "\x00"), "\x00") {
		if filepath.Base(arg) == want {
			return true
		}
	}
	return false
}

// Stop terminates the recorded process and removes the pidfile.
func Stop(cfg Config, launcher ports.ProcessLauncher, fs ports.FileSystem) (Status, error) {
	st, err := Inspect(cfg, launcher, fs)
	if err != nil {
		return st, err
	}
	if !st.Alive {
		if st.PID != 0 {
			_ = fs.Remove(cfg.PIDFile())
		}
		return st, ErrNotRunning
	}
	if err := launcher.Stop(st.PID); err != nil {
		return st, fmt.Errorf("stop %s (pid %d): %w", cfg.Name, st.PID, err)
	}
	st.Alive = false
	if err := fs.Remove(cfg.PIDFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return st, fmt.Errorf("remove pidfile: %w", err)
	}
	return st, nil
}

// Tail returns the last n lines of the file at path, or "" when it cannot
// be read.
func Tail(fs ports.FileSystem, path string, n int) string {
	data, err := fs.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func readPID(fs ports.FileSystem, path string) (int, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pidfile %s holds %q, not a process id", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}
