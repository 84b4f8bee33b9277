package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gpuprep/internal/app"
	"github.com/felixgeelhaar/gpuprep/internal/config"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/testutil"
	"github.com/felixgeelhaar/gpuprep/internal/testutil/mocks"
)

var (
	gpuQuery  = []string{"--query-gpu=count", "--format=csv,noheader"}
	ufwStatus = []string{"ufw", "status"}
	ufwAllow  = []string{"ufw", "allow", "8000/tcp"}
	allowed   = ports.CommandResult{Stdout: "Status: active\n\n8000/tcp  ALLOW  Anywhere\n"}
)

const serverYAML = `
server:
  model: /data/models/qwen
  executable: /opt/miniconda3/envs/vllm/bin/vllm
  state_dir: /var/lib/gpuprep
`

type host struct {
	runner   *mocks.CommandRunner
	fs       *mocks.FileSystem
	launcher *mocks.Launcher
	locator  *mocks.ToolLocator
}

// setupCLI points the commands at a manifest in a temp dir and binds every
// provisioner they build to a mocked host.
func setupCLI(t *testing.T, manifest string) (*host, *cobra.Command, *bytes.Buffer) {
	t.Helper()

	h := &host{
		runner:   mocks.NewCommandRunner(),
		fs:       mocks.NewFileSystem(),
		launcher: mocks.NewLauncher(),
		locator:  mocks.NewToolLocator(),
	}

	origProvisioner := newProvisioner
	origCfg, origVerbose, origNoColor := cfgFile, verbose, noColor
	origOnly, origDryRun, origTUI := applyOnly, applyDryRun, applyTUI
	t.Cleanup(func() {
		newProvisioner = origProvisioner
		cfgFile, verbose, noColor = origCfg, origVerbose, origNoColor
		applyOnly, applyDryRun, applyTUI = origOnly, origDryRun, origTUI
		planOnly, verifyRepair, statusLogs = nil, false, 0
	})

	newProvisioner = func(m *config.Manifest, out io.Writer) *app.Provisioner {
		return app.New(m, out).
			WithCommandRunner(h.runner).
			WithFileSystem(h.fs).
			WithLauncher(h.launcher).
			WithToolLocator(h.locator).
			WithEnvLookup(func(string) (string, bool) { return "", false })
	}
	cfgFile = testutil.WriteTempFile(t, t.TempDir(), "gpuprep.yaml", manifest)
	noColor = true

	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return h, cmd, out
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range []string{"apply", "plan", "facts", "verify", "status", "stop", "mcp", "version"} {
		assert.True(t, names[name], "%s should be a subcommand of root", name)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "log-level", "log-json", "no-color"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "c", rootCmd.PersistentFlags().Lookup("config").Shorthand)
}

func TestApplyCmd_Flags(t *testing.T) {
	for _, name := range []string{"dry-run", "only", "tui"} {
		assert.NotNil(t, applyCmd.Flags().Lookup(name), "missing --%s", name)
	}
}

func TestRunApply_ProvisionsThenSkips(t *testing.T) {
	h, cmd, out := setupCLI(t, serverYAML)
	h.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "2\n2\n"})
	h.runner.AddResult("sudo", ufwStatus, ports.CommandResult{Stdout: "Status: active\n"}, allowed)
	h.runner.AddResult("sudo", ufwAllow, ports.CommandResult{})

	require.NoError(t, runApply(cmd, nil))
	assert.Contains(t, out.String(), "service:launch:vllm")
	assert.Contains(t, out.String(), "2 applied")
	assert.Len(t, h.launcher.Launched(), 1)

	out.Reset()
	require.NoError(t, runApply(cmd, nil))
	assert.Contains(t, out.String(), "3 skipped")
	assert.Len(t, h.launcher.Launched(), 1)
}

func TestRunApply_FailurePrintsReport(t *testing.T) {
	h, cmd, out := setupCLI(t, serverYAML)
	h.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "abc\n"})

	err := runApply(cmd, nil)
	require.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out.String(), "gpu:require:1")
	assert.Contains(t, out.String(), "VALIDATION_FAILED")
	assert.Empty(t, h.launcher.Launched())
}

func TestRunApply_DryRun(t *testing.T) {
	h, cmd, out := setupCLI(t, serverYAML)
	h.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "1\n"})
	h.runner.AddResult("sudo", ufwStatus, ports.CommandResult{Stdout: "Status: active\n"})
	applyDryRun = true

	require.NoError(t, runApply(cmd, nil))
	assert.Contains(t, out.String(), "3 total, 2 to apply, 1 satisfied")
	assert.Empty(t, h.launcher.Launched())
	assert.False(t, h.runner.Called("sudo", ufwAllow...))
}

func TestRunApply_Only(t *testing.T) {
	h, cmd, out := setupCLI(t, serverYAML)
	h.runner.AddResult("sudo", ufwStatus, allowed)
	applyOnly = []string{"firewall"}

	require.NoError(t, runApply(cmd, nil))
	assert.Contains(t, out.String(), "firewall:allow:8000/tcp")
	assert.NotContains(t, out.String(), "service:launch")

	applyOnly = []string{"nothing"}
	err := runApply(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no step matches nothing")
	assert.Empty(t, h.launcher.Launched())
}

func TestRunApply_MissingConfig(t *testing.T) {
	_, cmd, _ := setupCLI(t, serverYAML)
	cfgFile = filepath.Join(t.TempDir(), "gpuprep.yaml")

	err := runApply(cmd, nil)
	assert.True(t, config.IsUserError(err, config.ErrCodeConfigNotFound))
}

func TestRunPlan(t *testing.T) {
	h, cmd, out := setupCLI(t, serverYAML)
	h.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "4\n"})
	h.runner.AddResult("sudo", ufwStatus, allowed)
	h.fs.AddFile("/var/lib/gpuprep/vllm.pid", "4242\n")
	h.launcher.SetAlive(4242, true)

	require.NoError(t, runPlan(cmd, nil))
	assert.Contains(t, out.String(), "No changes needed")
}

func TestRunFacts(t *testing.T) {
	h, cmd, out := setupCLI(t, serverYAML)
	h.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "8\n"})

	require.NoError(t, runFacts(cmd, nil))
	assert.Contains(t, out.String(), "accelerator_count")
	assert.Contains(t, out.String(), "8")
}

func TestRunFacts_ProbeError(t *testing.T) {
	h, cmd, _ := setupCLI(t, serverYAML)
	h.runner.AddResult("nvidia-smi", gpuQuery, ports.CommandResult{Stdout: "abc\n"})

	err := runFacts(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fact gathering failed")
}

func TestRunVerify_NoModel(t *testing.T) {
	_, cmd, _ := setupCLI(t, serverYAML)

	err := runVerify(cmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrVerifyDisabled)
}

func TestRunStatusAndStop(t *testing.T) {
	h, cmd, out := setupCLI(t, serverYAML)
	h.fs.AddFile("/var/lib/gpuprep/vllm.pid", "4242\n")
	h.fs.AddFile("/var/lib/gpuprep/vllm.log", "INFO: Application startup complete.\n")
	h.launcher.SetAlive(4242, true)
	statusLogs = 5

	require.NoError(t, runStatus(cmd, nil))
	assert.Contains(t, out.String(), "running, pid 4242")
	assert.Contains(t, out.String(), "Application startup complete")

	out.Reset()
	require.NoError(t, runStop(cmd, nil))
	assert.Contains(t, out.String(), "vllm: stopped pid 4242")
	assert.Equal(t, []int{4242}, h.launcher.Stopped())

	err := runStop(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop failed")
}

func TestVersionCmd(t *testing.T) {
	orig := version
	t.Cleanup(func() { version = orig })
	version = "1.2.3"

	out := &bytes.Buffer{}
	versionCmd.SetOut(out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, out.String(), "gpuprep 1.2.3")
	assert.Contains(t, out.String(), "commit:")
}

func TestMCPLoader(t *testing.T) {
	_, _, _ = setupCLI(t, serverYAML)

	p, err := mcpLoader(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "vllm", p.Manifest().Server.Name)

	_, err = mcpLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, config.IsUserError(err, config.ErrCodeConfigNotFound))
}

func TestFormatError(t *testing.T) {
	t.Cleanup(func() { verbose = false })

	userErr := &config.UserError{
		Code:       config.ErrCodeConfigParse,
		Message:    "failed to parse gpuprep.yaml",
		Context:    "gpuprep.yaml",
		Suggestion: "Check the YAML syntax.",
		Underlying: errors.New("line 3: mapping values are not allowed"),
	}

	verbose = false
	msg := formatError(userErr)
	assert.Contains(t, msg, "(at gpuprep.yaml)")
	assert.Contains(t, msg, "Suggestion: Check the YAML syntax.")
	assert.NotContains(t, msg, "line 3")

	verbose = true
	assert.Contains(t, formatError(userErr), "line 3")

	verbose = false
	stepErr := sequence.NewActionFailedError("service:launch:vllm", errors.New("exited")).
		WithSuggestion("Check the server log.")
	assert.Contains(t, formatError(stepErr), "Suggestion: Check the server log.")

	list := config.NewErrorList()
	list.AddValidation("server.port", "must be between 1 and 65535", "")
	assert.Contains(t, formatError(list), "Found 1 error(s):")

	assert.Equal(t, "plain", formatError(errors.New("plain")))

	buf := &bytes.Buffer{}
	printErrorTo(buf, errors.New("boom"))
	assert.Equal(t, "Error: boom\n", buf.String())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"run failed", errRunFailed, exitFailure},
		{"config error", errors.New("failed to parse gpuprep.yaml"), exitFailure},
		{"interrupted", errInterrupted, exitInterrupted},
		{"wrapped interrupt", fmt.Errorf("apply: %w", errInterrupted), exitInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
