package apt

import (
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Provider turns the apt section into steps.
type Provider struct {
	runner ports.CommandRunner
}

// NewProvider creates a new apt Provider.
func NewProvider(runner ports.CommandRunner) *Provider {
	return &Provider{runner: runner}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "apt"
}

// Steps returns the steps for cfg, or none when no package is requested.
func (p *Provider) Steps(cfg Config) []sequence.Step {
	if !cfg.Enabled() {
		return nil
	}
	return []sequence.Step{NewPackagesStep(cfg.Packages, cfg.Update, p.runner)}
}
