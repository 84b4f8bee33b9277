package conda

import (
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Provider turns the conda section into steps.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewProvider creates a new conda Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{runner: runner, fs: fs}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "conda"
}

// Steps returns the installer, init, environment, activation and package
// steps in the order they depend on each other.
func (p *Provider) Steps(cfg Config) []sequence.Step {
	if !cfg.Enabled() {
		return nil
	}

	steps := []sequence.Step{NewInstallerStep(cfg, p.runner, p.fs)}
	if !cfg.SkipInit {
		steps = append(steps, NewInitStep(cfg, p.runner, p.fs))
	}
	steps = append(steps, NewEnvStep(cfg, p.runner, p.fs))
	if cfg.Activate {
		steps = append(steps, NewActivationStep(cfg, p.runner, p.fs))
	}
	if len(cfg.Packages) > 0 {
		steps = append(steps, NewPackagesStep(cfg, p.runner, p.fs))
	}
	return steps
}
