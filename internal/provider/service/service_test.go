package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/service"
	"github.com/felixgeelhaar/gpuprep/internal/testutil"
	"github.com/felixgeelhaar/gpuprep/internal/testutil/mocks"
)

func vllm() service.Config {
	return service.Config{
		Name:       "vllm",
		Executable: "/opt/miniconda3/envs/vllm/bin/vllm",
		Entrypoint: service.EntrypointServe,
		StateDir:   "/var/lib/gpuprep",
		Grace:      10 * time.Second,
		Server: service.ServerSpec{
			Model:                "/AISPK/Qwen/Qwen3-8B",
			GPUMemoryUtilization: 0.9,
			MaxNumSeqs:           256,
			Host:                 "0.0.0.0",
			Port:                 8000,
			LogLevel:             "info",
			DType:                "auto",
			TrustRemoteCode:      true,
		},
	}
}

func TestServerSpec_Args(t *testing.T) {
	t.Parallel()

	spec := vllm().Server
	spec.ServedModelName = "qwen3"
	spec.ExtraArgs = []string{"--enable-expert-parallel"}

	assert.Equal(t, []string{
		"serve", "/AISPK/Qwen/Qwen3-8B",
		"--served-model-name=qwen3",
		"--tensor-parallel-size=8",
		"--gpu-memory-utilization=0.9",
		"--max-num-seqs=256",
		"--host=0.0.0.0",
		"--port=8000",
		"--uvicorn-log-level=info",
		"--dtype=auto",
		"--trust-remote-code",
		"--enable-expert-parallel",
	}, spec.Args(service.EntrypointServe, 8))
}

func TestServerSpec_Args_KeepsMemoryFractionPrecision(t *testing.T) {
	t.Parallel()

	spec := vllm().Server
	spec.GPUMemoryUtilization = 0.925

	assert.Contains(t, spec.Args(service.EntrypointServe, 1), "--gpu-memory-utilization=0.925")
}

func TestServerSpec_Args_APIServerAndExplicitTP(t *testing.T) {
	t.Parallel()

	spec := vllm().Server
	spec.TensorParallelSize = 4
	spec.TrustRemoteCode = false

	args := spec.Args(service.EntrypointAPIServer, 8)

	assert.Equal(t, []string{"-m", "vllm.entrypoints.openai.api_server", "--model=/AISPK/Qwen/Qwen3-8B"}, args[:3])
	assert.Contains(t, args, "--tensor-parallel-size=4")
	assert.NotContains(t, args, "--trust-remote-code")
}

func TestServerSpec_ArgsAreDeterministic(t *testing.T) {
	t.Parallel()

	spec := vllm().Server
	first := strings.Join(spec.Args(service.EntrypointServe, 2), " ")
	for range 20 {
		assert.Equal(t, first, strings.Join(spec.Args(service.EntrypointServe, 2), " "))
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*service.Config)
	}{
		{name: "memory fraction too high", mutate: func(c *service.Config) { c.Server.GPUMemoryUtilization = 1.5 }},
		{name: "port out of range", mutate: func(c *service.Config) { c.Server.Port = 70000 }},
		{name: "unknown dtype", mutate: func(c *service.Config) { c.Server.DType = "int3" }},
		{name: "unknown log level", mutate: func(c *service.Config) { c.Server.LogLevel = "loud" }},
		{name: "injected extra arg", mutate: func(c *service.Config) { c.Server.ExtraArgs = []string{"--x; reboot"} }},
		{name: "no grace", mutate: func(c *service.Config) { c.Grace = 0 }},
		{name: "unknown entrypoint", mutate: func(c *service.Config) { c.Entrypoint = "ray" }},
		{name: "bad host", mutate: func(c *service.Config) { c.Server.Host = "-h" }},
	}

	require.NoError(t, vllm().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := vllm()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLaunchStep_LaunchesAndRecordsPID(t *testing.T) {
	t.Parallel()

	launcher := mocks.NewLauncher()
	fs := mocks.NewFileSystem()
	step := service.NewLaunchStep(vllm(), launcher, fs)
	ctx := testutil.RunContext(testutil.StaticFacts{Accelerators: 8})

	status, err := step.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, sequence.StatusNeedsApply, status)

	require.NoError(t, step.Apply(ctx))
	require.NoError(t, step.Verify(ctx))

	launched := launcher.Launched()
	require.Len(t, launched, 1)
	assert.Equal(t, "/opt/miniconda3/envs/vllm/bin/vllm", launched[0].Command)
	assert.Equal(t, "/var/lib/gpuprep/vllm.log", launched[0].LogPath)
	assert.Contains(t, launched[0].Args, "--tensor-parallel-size=8")

	pid, err := fs.ReadFile("/var/lib/gpuprep/vllm.pid")
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(pid))

	notes := step.Report()
	assert.Contains(t, notes[1], "tail -f /var/lib/gpuprep/vllm.log")
	assert.Contains(t, notes[2], "gpuprep stop")
	assert.Empty(t, step.Requires())
}

func TestLaunchStep_SkipsWhenRunning(t *testing.T) {
	t.Parallel()

	launcher := mocks.NewLauncher()
	launcher.SetAlive(777, true)
	fs := mocks.NewFileSystem()
	fs.AddFile("/var/lib/gpuprep/vllm.pid", "777\n")

	status, err := service.NewLaunchStep(vllm(), launcher, fs).Check(testutil.RunContext(nil))

	require.NoError(t, err)
	assert.Equal(t, sequence.StatusSatisfied, status)
}

func TestLaunchStep_StaleOrGarbledPIDFile(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"777\n", "not-a-pid"} {
		fs := mocks.NewFileSystem()
		fs.AddFile("/var/lib/gpuprep/vllm.pid", content)

		status, err := service.NewLaunchStep(vllm(), mocks.NewLauncher(), fs).Check(testutil.RunContext(nil))

		require.NoError(t, err)
		assert.Equal(t, sequence.StatusNeedsApply, status, content)
	}
}

func TestLaunchStep_DeadAfterGraceSurfacesLog(t *testing.T) {
	t.Parallel()

	launcher := mocks.NewLauncher()
	launcher.DieAfterLaunch()
	fs := mocks.NewFileSystem()
	launcher.OnLaunch(func(spec ports.ProcessSpec) {
		fs.AddFile(spec.LogPath, "INFO loading weights\ntorch.OutOfMemoryError: CUDA out of memory\n")
	})

	seq := sequence.New()
	require.NoError(t, seq.Add(service.NewLaunchStep(vllm(), launcher, fs)))

	runner := sequence.NewRunner(mocks.NewToolLocator(), nil).WithFacts(testutil.StaticFacts{Accelerators: 2})
	_, err := runner.Run(context.Background(), seq)

	require.Error(t, err)
	stepErr, ok := sequence.AsStepError(err)
	require.True(t, ok)
	assert.Equal(t, sequence.ErrCodeActionFailed, stepErr.Code)
	assert.Equal(t, "service:launch:vllm", stepErr.StepID)
	assert.Contains(t, stepErr.Output, "CUDA out of memory")
	assert.False(t, fs.Exists("/var/lib/gpuprep/vllm.pid"))
}

// cancelAwareLauncher fails ProbeAlive once its context is done, as a
// launcher that honoured cancellation would.
type cancelAwareLauncher struct {
	*mocks.Launcher
}

func (l cancelAwareLauncher) ProbeAlive(ctx context.Context, handle ports.ProcessHandle, after time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.Launcher.ProbeAlive(ctx, handle, after)
}

func TestLaunchStep_VerifySurvivesCancelledRun(t *testing.T) {
	t.Parallel()

	launcher := cancelAwareLauncher{mocks.NewLauncher()}
	fs := mocks.NewFileSystem()
	step := service.NewLaunchStep(vllm(), launcher, fs)

	parent, cancel := context.WithCancel(context.Background())
	ctx := sequence.NewRunContext(parent).WithFacts(testutil.StaticFacts{Accelerators: 2})
	require.NoError(t, step.Apply(ctx))
	cancel()

	require.NoError(t, step.Verify(ctx))
	assert.True(t, fs.Exists("/var/lib/gpuprep/vllm.pid"))
}

func TestLaunchStep_NeedsAcceleratorCount(t *testing.T) {
	t.Parallel()

	step := service.NewLaunchStep(vllm(), mocks.NewLauncher(), mocks.NewFileSystem())

	assert.Error(t, step.Apply(testutil.RunContext(nil)))

	probeErr := sequence.NewValidationError("accelerator_count", "abc", "n/a", "not a non-negative integer")
	err := step.Apply(testutil.RunContext(testutil.StaticFacts{Err: probeErr}))
	assert.Equal(t, sequence.ErrCodeValidationFailed, sequence.CodeOf(err))
}

func TestLaunchStep_LaunchError(t *testing.T) {
	t.Parallel()

	launcher := mocks.NewLauncher()
	launcher.FailLaunch(errors.New("exec format error"))
	step := service.NewLaunchStep(vllm(), launcher, mocks.NewFileSystem())

	err := step.Apply(testutil.RunContext(testutil.StaticFacts{Accelerators: 1}))

	assert.ErrorContains(t, err, "exec format error")
}

func TestInspectAndStop(t *testing.T) {
	t.Parallel()

	launcher := mocks.NewLauncher()
	launcher.SetAlive(900, true)
	fs := mocks.NewFileSystem()
	fs.AddFile("/var/lib/gpuprep/vllm.pid", "900")

	st, err := service.Inspect(vllm(), launcher, fs)
	require.NoError(t, err)
	assert.True(t, st.Alive)
	assert.Equal(t, 900, st.PID)

	st, err = service.Stop(vllm(), launcher, fs)
	require.NoError(t, err)
	assert.False(t, st.Alive)
	assert.Equal(t, []int{900}, launcher.Stopped())
	assert.False(t, fs.Exists("/var/lib/gpuprep/vllm.pid"))

	_, err = service.Stop(vllm(), launcher, fs)
	assert.ErrorIs(t, err, service.ErrNotRunning)
}

func TestInspect_ReusedPID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cmdline string
		alive   bool
	}{
		{"server", "/opt/miniconda3/envs/vllm/bin/vllm\x00serve\x00/AISPK/Qwen/Qwen3-8B\x00", true},
		{"interpreted script", "/opt/miniconda3/envs/vllm/bin/python\x00/opt/miniconda3/envs/vllm/bin/vllm\x00serve\x00", true},
		{"other program", "/usr/sbin/sshd\x00-D\x00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			launcher := mocks.NewLauncher()
			launcher.SetAlive(900, true)
			fs := mocks.NewFileSystem()
			fs.AddFile("/var/lib/gpuprep/vllm.pid", "900\n")
			fs.AddFile("/proc/900/cmdline", tt.cmdline)

			st, err := service.Inspect(vllm(), launcher, fs)
			require.NoError(t, err)
			assert.Equal(t, tt.alive, st.Alive)
			assert.Equal(t, !tt.alive, st.Reused)

			status, err := service.NewLaunchStep(vllm(), launcher, fs).Check(testutil.RunContext(nil))
			require.NoError(t, err)
			if tt.alive {
				assert.Equal(t, sequence.StatusSatisfied, status)
			} else {
				assert.Equal(t, sequence.StatusNeedsApply, status)
				_, err = service.Stop(vllm(), launcher, fs)
				assert.ErrorIs(t, err, service.ErrNotRunning)
				assert.Empty(t, launcher.Stopped())
			}
		})
	}
}

func TestInspect_NoPIDFile(t *testing.T) {
	t.Parallel()

	st, err := service.Inspect(vllm(), mocks.NewLauncher(), mocks.NewFileSystem())

	require.NoError(t, err)
	assert.Zero(t, st.PID)
	assert.False(t, st.Alive)
}

func TestTail(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/log", "a\nb\nc\nd\n")

	assert.Equal(t, "c\nd", service.Tail(fs, "/log", 2))
	assert.Equal(t, "a\nb\nc\nd", service.Tail(fs, "/log", 10))
	assert.Empty(t, service.Tail(fs, "/missing", 10))
}
