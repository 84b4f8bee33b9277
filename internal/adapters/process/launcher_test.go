//go:build !windows

package process

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/testutil"
)

func TestLauncher_LongRunningProcessStaysAlive(t *testing.T) {
	t.Parallel()

	l := NewLauncher()
	logPath := filepath.Join(t.TempDir(), "logs", "server.log")

	handle, err := l.Launch(context.Background(), ports.ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "echo ready; sleep 30"},
		LogPath: logPath,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Stop(handle.PID) })

	alive, err := l.ProbeAlive(context.Background(), handle, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, alive)
	assert.Equal(t, logPath, handle.LogPath)

	testutil.AssertFileContains(t, logPath, "ready")
}

func TestLauncher_ExitedProcessIsDead(t *testing.T) {
	t.Parallel()

	l := NewLauncher()
	logPath := filepath.Join(t.TempDir(), "server.log")

	handle, err := l.Launch(context.Background(), ports.ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "echo 'CUDA out of memory' >&2; exit 1"},
		LogPath: logPath,
	})
	require.NoError(t, err)

	alive, err := l.ProbeAlive(context.Background(), handle, 500*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, alive)

	testutil.AssertFileContains(t, logPath, "CUDA out of memory")
}

func TestLauncher_Stop(t *testing.T) {
	t.Parallel()

	l := NewLauncher()
	handle, err := l.Launch(context.Background(), ports.ProcessSpec{
		Command: "sleep",
		Args:    []string{"30"},
		LogPath: filepath.Join(t.TempDir(), "sleep.log"),
	})
	require.NoError(t, err)
	require.True(t, l.Alive(handle.PID))

	require.NoError(t, l.Stop(handle.PID))

	assert.Eventually(t, func() bool { return !l.Alive(handle.PID) }, 5*time.Second, 20*time.Millisecond)
	assert.Error(t, l.Stop(handle.PID))
}

func TestLauncher_Errors(t *testing.T) {
	t.Parallel()

	l := NewLauncher()

	_, err := l.Launch(context.Background(), ports.ProcessSpec{Command: "sleep"})
	assert.Error(t, err, "log path is required")

	_, err = l.Launch(context.Background(), ports.ProcessSpec{
		Command: "nonexistent-command-12345",
		LogPath: filepath.Join(t.TempDir(), "x.log"),
	})
	assert.Error(t, err)

	assert.False(t, l.Alive(0))
	assert.False(t, l.Alive(-1))
}

func TestLauncher_ProbeAliveOutlastsCancelledContext(t *testing.T) {
	t.Parallel()

	l := NewLauncher()
	handle, err := l.Launch(context.Background(), ports.ProcessSpec{
		Command: "sleep",
		Args:    []string{"30"},
		LogPath: filepath.Join(t.TempDir(), "sleep.log"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Stop(handle.PID) })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	alive, err := l.ProbeAlive(ctx, handle, 400*time.Millisecond)

	require.NoError(t, err)
	assert.True(t, alive)
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestLauncher_ProbeAliveReturnsOnEarlyExit(t *testing.T) {
	t.Parallel()

	l := NewLauncher()
	handle, err := l.Launch(context.Background(), ports.ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
		LogPath: filepath.Join(t.TempDir(), "exit.log"),
	})
	require.NoError(t, err)

	start := time.Now()
	alive, err := l.ProbeAlive(context.Background(), handle, time.Minute)

	require.NoError(t, err)
	assert.False(t, alive)
	assert.Less(t, time.Since(start), 10*time.Second)
}
