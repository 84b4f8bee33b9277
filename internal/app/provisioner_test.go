package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gpuprep/internal/config"
	"github.com/felixgeelhaar/gpuprep/internal/domain/facts"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/conda"
	"github.com/felixgeelhaar/gpuprep/internal/provider/modelhub"
	"github.com/felixgeelhaar/gpuprep/internal/provider/service"
	"github.com/felixgeelhaar/gpuprep/internal/testutil"
	"github.com/felixgeelhaar/gpuprep/internal/testutil/mocks"
)

var (
	gpuQuery    = []string{"--query-gpu=count", "--format=csv,noheader"}
	ufwStatus   = []string{"ufw", "status"}
	ufwAllow    = []string{"ufw", "allow", "8000/tcp"}
	inactiveUFW = ports.CommandResult{Stdout: "Status: active\n"}
	allowedUFW  = ports.CommandResult{Stdout: "Status: active\n\nTo    Action  From\n8000/tcp  ALLOW  Anywhere\n"}
)

type fixture struct {
	runner   *mocks.CommandRunner
	fs       *mocks.FileSystem
	launcher *mocks.Launcher
	locator  *mocks.ToolLocator
	out      *bytes.Buffer
	p        *Provisioner
}

// serverManifest describes a host that only launches the server and opens
// its port.
func serverManifest(t *testing.T) *config.Manifest {
	t.Helper()
	m := &config.Manifest{}
	m.Server.Model = "/data/models/qwen"
	m.Server.StateDir = "/var/lib/gpuprep"
	m.Server.Executable = "/opt/miniconda3/envs/vllm/bin/vllm"
	m.ApplyDefaults()
	require.NoError(t, m.Validate())
	return m
}

func newFixture(t *testing.T, m *config.Manifest) *fixture {
	t.Helper()
	f := &fixture{
		runner:   mocks.NewCommandRunner(),
		fs:       mocks.NewFileSystem(),
		launcher: mocks.NewLauncher(),
		locator:  mocks.NewToolLocator(),
		out:      &bytes.Buffer{},
	}
	f.p = New(m, f.out).
		WithCommandRunner(f.runner).
		WithFileSystem(f.fs).
		WithLauncher(f.launcher).
		WithToolLocator(f.locator).
		WithEnvLookup(func(string) (string, bool) { return "", false })
	return f
}

func stepIDs(report *sequence.Report) []string {
	ids := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		ids = append(ids, r.StepID().String())
	}
	return ids
}

func outcomes(report *sequence.Report) []sequence.Outcome {
	out := make([]sequence.Outcome, 0, len(report.Results))
	for _, r := range report.Results {
		out = append(out, r.Outcome())
	}
	return out
}

func TestProvisioner_Sequence_Order(t *testing.T) {
	m := serverManifest(t)
	m.Apt.Packages = []string{"build-essential"}
	m.Benchmark = config.BenchmarkSection{Repo: "https://github.com/NVIDIA/nccl-tests.git", Dir: "/opt/nccl-tests"}
	m.Conda.Env = "vllm"
	m.Conda.Prefix = "/opt/miniconda3"
	m.Pip.IndexURL = "https://mirrors.aliyun.com/pypi/simple/"
	m.Model = modelhub.Config{ID: "Qwen/Qwen2.5-7B-Instruct", CacheDir: "/data/models"}
	m.ApplyDefaults()
	require.NoError(t, m.Validate())

	seq, err := newFixture(t, m).p.Sequence()
	require.NoError(t, err)

	ids := make([]string, 0, seq.Len())
	crit := make(map[string]sequence.Criticality)
	for _, e := range seq.Entries() {
		id := e.Step().ID().String()
		ids = append(ids, id)
		crit[id] = e.Criticality()
	}

	assert.Equal(t, []string{
		"apt:packages:system",
		"gpu:require:1",
		"git:clone:nccl-tests",
		"build:make:nccl-tests",
		"pip:index:global",
		"conda:install:miniconda3",
		"conda:init:bash",
		"conda:env:vllm",
		"model:download:Qwen/Qwen2.5-7B-Instruct",
		"service:launch:vllm",
		"firewall:allow:8000/tcp",
	}, ids)
	assert.Equal(t, sequence.BestEffort, crit["conda:init:bash"])
	assert.Equal(t, sequence.BestEffort, crit["firewall:allow:8000/tcp"])
	assert.Equal(t, sequence.Critical, crit["service:launch:vllm"])
	assert.Equal(t, sequence.Critical, crit["gpu:require:1"])
}

func TestProvisioner_Sequence_Criticality(t *testing.T) {
	m := serverManifest(t)
	m.Firewall.Critical = true
	m.Server.BestEffort = true

	seq, err := newFixture(t, m).p.Sequence()
	require.NoError(t, err)

	fw, ok := seq.Get(sequence.MustNewStepID("firewall:allow:8000/tcp"))
	require.True(t, ok)
	assert.Equal(t, sequence.Critical, fw.Criticality())

	svc, ok := seq.Get(sequence.MustNewStepID("service:launch:vllm"))
	require.True(t, ok)
	assert.Equal(t, sequence.BestEffort, svc.Criticality())
}

func TestProvisioner_Apply_SecondRunPerformsNoActions(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "2\n2\n"})
	f.runner.AddResult("sudo", ufwStatus, inactiveUFW, allowedUFW)
	f.runner.AddResult("sudo", ufwAllow, ports.CommandResult{})

	report, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, sequence.RunSucceeded, report.State)
	assert.Equal(t, []sequence.Outcome{sequence.OutcomeSkipped, sequence.OutcomeApplied, sequence.OutcomeApplied}, outcomes(report))
	assert.Equal(t, 2, report.Actions())

	launched := f.launcher.Launched()
	require.Len(t, launched, 1)
	assert.Contains(t, launched[0].Args, "--tensor-parallel-size=2")
	assert.Equal(t, "/var/lib/gpuprep/vllm.log", launched[0].LogPath)
	assert.True(t, f.fs.Exists("/var/lib/gpuprep/vllm.pid"))

	again, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Actions())
	assert.Equal(t, 3, again.Count(sequence.OutcomeSkipped))
	assert.Len(t, f.launcher.Launched(), 1)
}

func TestProvisioner_Apply_InvalidAcceleratorCountStopsBeforeLaunch(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "abc\n"})

	report, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.Error(t, err)
	assert.Equal(t, sequence.ErrCodeValidationFailed, sequence.CodeOf(err))
	assert.Equal(t, sequence.RunFailed, report.State)
	assert.Equal(t, []sequence.Outcome{sequence.OutcomeFailed, sequence.OutcomeNotRun, sequence.OutcomeNotRun}, outcomes(report))
	assert.Empty(t, f.launcher.Launched())
	assert.False(t, f.runner.Called("sudo", ufwAllow...))
}

func TestProvisioner_Apply_DeadServerSurfacesLog(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "1\n"})
	f.launcher.DieAfterLaunch()
	f.launcher.OnLaunch(func(spec ports.ProcessSpec) {
		f.fs.AddFile(spec.LogPath, "loading weights\ntorch.OutOfMemoryError: CUDA out of memory\n")
	})

	report, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.Error(t, err)

	stepErr, ok := sequence.AsStepError(err)
	require.True(t, ok)
	assert.Equal(t, sequence.ErrCodeActionFailed, stepErr.Code)
	assert.Equal(t, "service:launch:vllm", stepErr.StepID)
	assert.Contains(t, stepErr.Output, "CUDA out of memory")
	assert.Equal(t, sequence.OutcomeNotRun, report.Results[2].Outcome())
	assert.False(t, f.runner.Called("sudo", ufwAllow...))
}

func TestProvisioner_Apply_BestEffortFirewallTolerated(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "1\n"})
	f.runner.AddResult("sudo", ufwStatus, inactiveUFW)
	f.runner.AddResult("sudo", ufwAllow, ports.CommandResult{ExitCode: 1, Stderr: "ERROR: Couldn't determine iptables version"})

	report, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, sequence.OutcomeTolerated, report.Results[2].Outcome())
	assert.Equal(t, sequence.RunSucceeded, report.State)
}

func TestProvisioner_Apply_MissingToolAbortsBeforeAnyStep(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.locator.Missing("nvidia-smi")

	report, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.Error(t, err)
	assert.Equal(t, sequence.ErrCodeMissingDependency, sequence.CodeOf(err))
	assert.Empty(t, f.runner.Calls())
	assert.Equal(t, 0, report.Actions())
}

func TestProvisioner_Apply_Only(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.runner.AddResult("sudo", ufwStatus, allowedUFW)

	report, err := f.p.Apply(context.Background(), ApplyOptions{Only: []string{"firewall"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"firewall:allow:8000/tcp"}, stepIDs(report))

	_, err = f.p.Apply(context.Background(), ApplyOptions{Only: []string{"fire"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no step matches fire")
}

func TestProvisioner_Plan(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "4\n"})
	f.runner.AddResult("sudo", ufwStatus, inactiveUFW)

	report, err := f.p.Plan(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, []sequence.Outcome{sequence.OutcomeSkipped, sequence.OutcomePending, sequence.OutcomePending}, outcomes(report))
	assert.Empty(t, f.launcher.Launched())

	f.p.PrintPlan(report)
	assert.Contains(t, f.out.String(), "3 total, 2 to apply, 1 satisfied")
	assert.Contains(t, f.out.String(), "Pending")
}

const (
	condaBin    = "/opt/miniconda3/bin/conda"
	modelDir    = "/data/models/Qwen/Qwen2.5-7B-Instruct"
	envsBefore  = `{"envs": ["/opt/miniconda3"]}`
	envsCreated = `{"envs": ["/opt/miniconda3", "/opt/miniconda3/envs/vllm"]}`
)

var (
	installerArgs = []string{"-fsSL", "-o", "/opt/miniconda-installer.sh", conda.DefaultInstallerURL}
	bashArgs      = []string{"/opt/miniconda-installer.sh", "-b", "-u", "-p", "/opt/miniconda3"}
	pipShow       = []string{"run", "-n", "vllm", "pip", "show", "-q", "vllm", "modelscope"}
	pipInstall    = []string{"run", "-n", "vllm", "pip", "install", "vllm", "modelscope"}
	modelDownload = []string{"download", "--model", "Qwen/Qwen2.5-7B-Instruct", "--local_dir", modelDir, "--revision", "master"}
)

// freshHostManifest installs conda, the server and the hub client into an
// environment, then downloads and serves a model. Nothing exists yet.
func freshHostManifest(t *testing.T) *config.Manifest {
	t.Helper()
	m := &config.Manifest{}
	m.Conda = conda.Config{Prefix: "/opt/miniconda3", Env: "vllm", Packages: []string{"vllm", "modelscope"}, SkipInit: true}
	m.Model = modelhub.Config{ID: "Qwen/Qwen2.5-7B-Instruct", CacheDir: "/data/models"}
	m.Server.StateDir = "/var/lib/gpuprep"
	m.ApplyDefaults()
	require.NoError(t, m.Validate())
	return m
}

func TestProvisioner_Apply_FreshHostUsesToolsFromEarlierSteps(t *testing.T) {
	m := freshHostManifest(t)
	client := "/opt/miniconda3/envs/vllm/bin/modelscope"
	require.Equal(t, client, m.Model.Client)

	f := newFixture(t, m)
	f.locator.Missing("conda", "modelscope", "vllm")
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "2\n"})
	f.runner.AddResult("curl", installerArgs, ports.CommandResult{})
	f.runner.AddResult("bash", bashArgs, ports.CommandResult{})
	f.runner.OnRun("bash", bashArgs, func() { f.fs.AddFile(condaBin, "") })
	f.runner.AddResult(condaBin, []string{"--version"}, ports.CommandResult{Stdout: "conda 24.9.2\n"})
	f.runner.AddResult(condaBin, []string{"env", "list", "--json"},
		ports.CommandResult{Stdout: envsBefore},
		ports.CommandResult{Stdout: envsCreated},
	)
	createArgs := []string{"create", "-y", "-n", "vllm", "python=3.10"}
	f.runner.AddResult(condaBin, createArgs, ports.CommandResult{})
	f.runner.OnRun(condaBin, createArgs, func() { f.fs.AddDir("/opt/miniconda3/envs/vllm") })
	f.runner.AddResult(condaBin, []string{"run", "-n", "vllm", "python", "--version"}, ports.CommandResult{Stdout: "Python 3.10.14\n"})
	f.runner.AddResult(condaBin, pipShow, ports.CommandResult{ExitCode: 1}, ports.CommandResult{})
	f.runner.AddResult(condaBin, pipInstall, ports.CommandResult{})
	f.runner.AddResult(client, modelDownload, ports.CommandResult{})
	f.runner.OnRun(client, modelDownload, func() { f.fs.AddFile(modelDir+"/config.json", "{}") })
	f.runner.AddResult("sudo", ufwStatus, inactiveUFW, allowedUFW)
	f.runner.AddResult("sudo", ufwAllow, ports.CommandResult{})

	report, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, sequence.RunSucceeded, report.State)
	assert.Equal(t, []string{
		"gpu:require:1",
		"conda:install:miniconda3",
		"conda:env:vllm",
		"conda:packages:vllm",
		"model:download:Qwen/Qwen2.5-7B-Instruct",
		"service:launch:vllm",
		"firewall:allow:8000/tcp",
	}, stepIDs(report))
	assert.Equal(t, 6, report.Count(sequence.OutcomeApplied))
	assert.True(t, f.runner.Called(client, modelDownload...))

	launched := f.launcher.Launched()
	require.Len(t, launched, 1)
	assert.Equal(t, "/opt/miniconda3/envs/vllm/bin/vllm", launched[0].Command)
}

func TestProvisioner_Plan_FreshHost(t *testing.T) {
	m := freshHostManifest(t)
	m.Model.Verify = true

	f := newFixture(t, m)
	f.p.WithMetadataSource(staticSource{})
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "2\n"})
	f.runner.AddResult("sudo", ufwStatus, inactiveUFW)

	report, err := f.p.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []sequence.Outcome{
		sequence.OutcomeSkipped,
		sequence.OutcomePending,
		sequence.OutcomePending,
		sequence.OutcomePending,
		sequence.OutcomePending,
		sequence.OutcomePending,
		sequence.OutcomePending,
		sequence.OutcomePending,
	}, outcomes(report))
	assert.Equal(t, "model:verify:Qwen/Qwen2.5-7B-Instruct", report.Results[5].StepID().String())
	assert.False(t, f.runner.Called(condaBin, "env", "list", "--json"))
	assert.Empty(t, f.launcher.Launched())
}

func TestProvisioner_Apply_WritesMetrics(t *testing.T) {
	m := serverManifest(t)
	m.Metrics.Textfile = filepath.Join(t.TempDir(), "gpuprep.prom")

	f := newFixture(t, m)
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "8\n"})
	f.runner.AddResult("sudo", ufwStatus, allowedUFW)

	_, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)

	testutil.AssertFileContains(t, m.Metrics.Textfile, `gpuprep_run_steps_total{outcome="applied"} 1`)
	testutil.AssertFileContains(t, m.Metrics.Textfile, "gpuprep_host_accelerators 8")
}

func TestProvisioner_PrintReport_ShowsNotes(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "1\n"})
	f.runner.AddResult("sudo", ufwStatus, allowedUFW)

	report, err := f.p.Apply(context.Background(), ApplyOptions{})
	require.NoError(t, err)

	f.p.PrintReport(report)
	out := f.out.String()
	assert.Contains(t, out, "Applied")
	assert.Contains(t, out, "service:launch:vllm")
	assert.Contains(t, out, "logs: tail -f /var/lib/gpuprep/vllm.log")
	assert.Contains(t, out, "1 applied, 2 skipped")
	assert.Contains(t, out, report.RunID)
}

func TestProvisioner_Facts(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.p.WithEnvLookup(func(key string) (string, bool) {
		if key == "CONDA_DEFAULT_ENV" {
			return "vllm", true
		}
		return "", false
	})
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "2\n2\n"})

	list, err := f.p.Facts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []facts.Fact{
		{Name: facts.FactAcceleratorCount, Value: "2"},
		{Name: facts.FactActiveEnvironment, Value: "vllm"},
	}, list)

	f.p.PrintFacts(list)
	assert.Contains(t, f.out.String(), "accelerator_count")
}

func TestProvisioner_Facts_ProbeError(t *testing.T) {
	f := newFixture(t, serverManifest(t))
	f.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "0\n"})

	list, err := f.p.Facts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero accelerators")
	assert.Empty(t, list)
}

func TestProvisioner_StatusAndStop(t *testing.T) {
	f := newFixture(t, serverManifest(t))

	st, err := f.p.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, st.PID)

	f.fs.AddFile("/var/lib/gpuprep/vllm.pid", "4242\n")
	f.launcher.SetAlive(4242, true)

	st, err = f.p.Status()
	require.NoError(t, err)
	assert.True(t, st.Alive)

	f.p.PrintStatus(st)
	assert.Contains(t, f.out.String(), "running, pid 4242")

	st, err = f.p.Stop()
	require.NoError(t, err)
	assert.False(t, st.Alive)
	assert.Equal(t, []int{4242}, f.launcher.Stopped())

	_, err = f.p.Stop()
	assert.ErrorIs(t, err, service.ErrNotRunning)
}

type staticSource []modelhub.FileMeta

func (s staticSource) Files(context.Context, string, string) ([]modelhub.FileMeta, error) {
	return s, nil
}

func sha(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestProvisioner_Verify(t *testing.T) {
	m := serverManifest(t)
	m.Model = modelhub.Config{ID: "Qwen/Qwen2.5-7B-Instruct", CacheDir: "/data/models", Verify: true}
	m.ApplyDefaults()

	f := newFixture(t, m)
	cfgJSON := `{"model_type":"qwen2"}`
	f.p.WithMetadataSource(staticSource{
		{Name: "config.json", SHA256: sha(cfgJSON), Size: int64(len(cfgJSON))},
	})
	f.fs.AddFile("/data/models/Qwen/Qwen2.5-7B-Instruct/config.json", cfgJSON)

	report, err := f.p.Verify(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Checked)
}

func TestProvisioner_Verify_Disabled(t *testing.T) {
	f := newFixture(t, serverManifest(t))

	_, err := f.p.Verify(context.Background(), false)
	assert.True(t, errors.Is(err, ErrVerifyDisabled))
}

func TestFormatError(t *testing.T) {
	stepErr := sequence.NewActionFailedError("service:launch:vllm", errors.New("exit 1")).WithOutput("oom")
	assert.Contains(t, FormatError(stepErr), "oom")

	list := config.NewErrorList()
	list.AddValidation("server.port", "out of range", "use 8000")
	assert.Contains(t, FormatError(list), "Suggestion: use 8000")

	assert.Equal(t, "plain", FormatError(errors.New("plain")))
}
