// Package app wires the manifest, the step providers and the sequencer
// into the operations the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/felixgeelhaar/gpuprep/internal/adapters/command"
	"github.com/felixgeelhaar/gpuprep/internal/adapters/filesystem"
	"github.com/felixgeelhaar/gpuprep/internal/adapters/logging"
	"github.com/felixgeelhaar/gpuprep/internal/adapters/process"
	"github.com/felixgeelhaar/gpuprep/internal/config"
	"github.com/felixgeelhaar/gpuprep/internal/domain/facts"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/metrics"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/apt"
	"github.com/felixgeelhaar/gpuprep/internal/provider/build"
	"github.com/felixgeelhaar/gpuprep/internal/provider/conda"
	"github.com/felixgeelhaar/gpuprep/internal/provider/firewall"
	"github.com/felixgeelhaar/gpuprep/internal/provider/git"
	"github.com/felixgeelhaar/gpuprep/internal/provider/gpu"
	"github.com/felixgeelhaar/gpuprep/internal/provider/modelhub"
	"github.com/felixgeelhaar/gpuprep/internal/provider/pip"
	"github.com/felixgeelhaar/gpuprep/internal/provider/service"
)

// ErrVerifyDisabled is returned by Verify when no model is configured.
var ErrVerifyDisabled = errors.New("no model configured")

// Provisioner is the main application orchestrator.
type Provisioner struct {
	manifest *config.Manifest
	runner   ports.CommandRunner
	fs       ports.FileSystem
	launcher ports.ProcessLauncher
	locator  ports.ToolLocator
	logger   ports.Logger
	source   modelhub.MetadataSource
	envFn    func(string) (string, bool)
	snapshot *facts.Snapshot
	out      io.Writer
	color    bool
}

// New creates a Provisioner for m backed by the real host.
func New(m *config.Manifest, out io.Writer) *Provisioner {
	p := &Provisioner{
		manifest: m,
		runner:   command.NewRealRunner(),
		fs:       filesystem.NewRealFileSystem(),
		launcher: process.NewLauncher(),
		locator:  command.NewPathLocator(),
		logger:   logging.NewNopLogger(),
		out:      out,
	}
	if m.Model.Verify {
		p.source = modelhub.NewClient(m.Model.APIBase)
	}
	return p
}

// WithCommandRunner replaces the command runner.
func (p *Provisioner) WithCommandRunner(r ports.CommandRunner) *Provisioner {
	p.runner = r
	p.snapshot = nil
	return p
}

// WithFileSystem replaces the filesystem.
func (p *Provisioner) WithFileSystem(fs ports.FileSystem) *Provisioner {
	p.fs = fs
	return p
}

// WithLauncher replaces the process launcher.
func (p *Provisioner) WithLauncher(l ports.ProcessLauncher) *Provisioner {
	p.launcher = l
	return p
}

// WithToolLocator replaces the PATH lookup used for dependency preflight.
func (p *Provisioner) WithToolLocator(l ports.ToolLocator) *Provisioner {
	p.locator = l
	return p
}

// WithLogger sets the logger used by the sequencer and the steps.
func (p *Provisioner) WithLogger(l ports.Logger) *Provisioner {
	p.logger = l
	return p
}

// WithMetadataSource replaces the model hub metadata client.
func (p *Provisioner) WithMetadataSource(s modelhub.MetadataSource) *Provisioner {
	p.source = s
	return p
}

// WithEnvLookup replaces the environment lookup of the fact snapshot.
func (p *Provisioner) WithEnvLookup(fn func(string) (string, bool)) *Provisioner {
	p.envFn = fn
	p.snapshot = nil
	return p
}

// WithColor enables coloured status labels in printed output.
func (p *Provisioner) WithColor(enabled bool) *Provisioner {
	p.color = enabled
	return p
}

// Manifest returns the loaded manifest.
func (p *Provisioner) Manifest() *config.Manifest {
	return p.manifest
}

// Snapshot returns the environment snapshot shared by every operation of
// this Provisioner.
func (p *Provisioner) Snapshot() *facts.Snapshot {
	if p.snapshot == nil {
		var opts []facts.Option
		if p.envFn != nil {
			opts = append(opts, facts.WithEnvLookup(p.envFn))
		}
		p.snapshot = facts.NewSnapshot(gpu.NewCountProbe(p.runner), opts...)
	}
	return p.snapshot
}

// stepGroup is the output of one manifest section and its failure policy.
type stepGroup struct {
	steps      []sequence.Step
	bestEffort bool
	critical   bool
}

// Sequence builds the ordered step list from the manifest: system
// packages, the accelerator check, the benchmark, the Python runtime, the
// model, the server and finally its firewall rule.
func (p *Provisioner) Sequence() (*sequence.Sequence, error) {
	m := p.manifest

	groups := []stepGroup{
		{steps: apt.NewProvider(p.runner).Steps(m.Apt), bestEffort: m.Apt.BestEffort},
		{steps: []sequence.Step{gpu.NewRequireStep(m.GPU.MinCount)}},
	}
	if m.Benchmark.Enabled() {
		steps := git.NewProvider(p.runner, p.fs).Steps(m.Benchmark.Git())
		steps = append(steps, build.NewProvider(p.runner, p.fs).Steps(m.Benchmark.Build())...)
		groups = append(groups, stepGroup{steps: steps, bestEffort: m.Benchmark.BestEffort})
	}
	groups = append(groups,
		stepGroup{steps: pip.NewProvider(p.fs).Steps(m.Pip), bestEffort: m.Pip.BestEffort},
		stepGroup{steps: conda.NewProvider(p.runner, p.fs).Steps(m.Conda), bestEffort: m.Conda.BestEffort},
		stepGroup{steps: modelhub.NewProvider(p.runner, p.fs, p.source).Steps(m.Model), bestEffort: m.Model.BestEffort},
	)
	if m.Server.On() {
		groups = append(groups, stepGroup{
			steps:      service.NewProvider(p.launcher, p.fs).Steps(m.Service()),
			bestEffort: m.Server.BestEffort,
		})
	}
	if m.Firewall.On() {
		groups = append(groups, stepGroup{
			steps:    firewall.NewProvider(p.runner).Steps(m.Firewall.Config),
			critical: m.Firewall.Critical,
		})
	}

	seq := sequence.New()
	for _, g := range groups {
		for _, step := range g.steps {
			c := criticality(step, g.bestEffort)
			if g.critical {
				c = sequence.Critical
			}
			if err := seq.AddWithCriticality(step, c); err != nil {
				return nil, err
			}
		}
	}
	return seq, nil
}

// criticality marks a step best-effort when its section asks for it or
// when the step is one that is usually safe to miss.
func criticality(step sequence.Step, bestEffort bool) sequence.Criticality {
	if bestEffort {
		return sequence.BestEffort
	}
	if d, ok := step.(interface{ BestEffortByDefault() bool }); ok && d.BestEffortByDefault() {
		return sequence.BestEffort
	}
	return sequence.Critical
}

// ApplyOptions controls a provisioning run.
type ApplyOptions struct {
	DryRun   bool
	Only     []string
	Observer sequence.Observer
}

// Select builds the sequence and keeps the steps whose ID matches one of
// the selectors: a full ID, or a prefix such as "conda" or "conda:env".
// Without selectors every step is kept.
func (p *Provisioner) Select(only []string) (*sequence.Sequence, error) {
	seq, err := p.Sequence()
	if err != nil {
		return nil, fmt.Errorf("failed to build sequence: %w", err)
	}
	if len(only) == 0 {
		return seq, nil
	}
	seq = seq.Filter(func(e sequence.Entry) bool {
		return matchesAny(e.Step().ID().String(), only)
	})
	if seq.IsEmpty() {
		return nil, fmt.Errorf("no step matches %s", strings.Join(only, ", "))
	}
	return seq, nil
}

// Apply runs the steps chosen by opts.Only, or the whole sequence.
func (p *Provisioner) Apply(ctx context.Context, opts ApplyOptions) (*sequence.Report, error) {
	seq, err := p.Select(opts.Only)
	if err != nil {
		return nil, err
	}

	runner := sequence.NewRunner(p.locator, p.logger).
		WithFacts(p.Snapshot()).
		WithDryRun(opts.DryRun)
	if opts.Observer != nil {
		runner = runner.WithObserver(opts.Observer)
	}

	ctx = ports.ContextWithLogger(ctx, p.logger)
	report, runErr := runner.Run(ctx, seq)
	if !opts.DryRun {
		if err := p.writeMetrics(report); err != nil {
			p.logger.Warn(ctx, "metrics not written", ports.Err(err))
		}
	}
	return report, runErr
}

// Plan evaluates every precondition without running any action.
func (p *Provisioner) Plan(ctx context.Context) (*sequence.Report, error) {
	return p.Apply(ctx, ApplyOptions{DryRun: true})
}

// Facts gathers the environment snapshot. The facts gathered so far are
// returned even when the accelerator probe fails.
func (p *Provisioner) Facts(ctx context.Context) ([]facts.Fact, error) {
	snap := p.Snapshot()
	_, err := snap.AcceleratorCount(ctx)
	return snap.All(), err
}

// Verify checks the downloaded model against the hub's file metadata. With
// repair, damaged files are removed and the download runs again before a
// second check.
func (p *Provisioner) Verify(ctx context.Context, repair bool) (*modelhub.VerifyReport, error) {
	cfg := p.manifest.Model
	if !cfg.Enabled() {
		return nil, ErrVerifyDisabled
	}
	source := p.source
	if source == nil {
		source = modelhub.NewClient(cfg.APIBase)
	}
	verifier := modelhub.NewVerifier(source, p.fs)

	report, err := verifier.Verify(ctx, cfg)
	if err != nil || report.OK() || !repair {
		return report, err
	}

	p.logger.Info(ctx, "repairing model", ports.F("model", cfg.ID), ports.F("damaged", len(report.Damaged())))
	if err := modelhub.Repair(ctx, cfg, report, p.runner, p.fs); err != nil {
		return report, fmt.Errorf("repair %s: %w", cfg.ID, err)
	}
	return verifier.Verify(ctx, cfg)
}

// Status inspects the launched server through its pidfile.
func (p *Provisioner) Status() (service.Status, error) {
	return service.Inspect(p.manifest.Service(), p.launcher, p.fs)
}

// Stop terminates the launched server.
func (p *Provisioner) Stop() (service.Status, error) {
	return service.Stop(p.manifest.Service(), p.launcher, p.fs)
}

// LogTail returns the last lines of the server log.
func (p *Provisioner) LogTail(lines int) string {
	return service.Tail(p.fs, p.manifest.Service().LogFile(), lines)
}

func (p *Provisioner) writeMetrics(report *sequence.Report) error {
	path := p.manifest.Metrics.Textfile
	if path == "" || report == nil {
		return nil
	}
	rec := metrics.NewRecorder()
	rec.Observe(report)
	if v, ok := p.Snapshot().Get(facts.FactAcceleratorCount); ok {
		if n, err := strconv.Atoi(v); err == nil {
			rec.SetAccelerators(n)
		}
	}
	return rec.WriteTextfile(path)
}

func matchesAny(id string, selectors []string) bool {
	return lo.SomeBy(selectors, func(sel string) bool {
		sel = strings.TrimSuffix(sel, ":")
		return id == sel || strings.HasPrefix(id, sel+":")
	})
}
