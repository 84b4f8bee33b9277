package firewall

import (
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Provider turns the firewall section into allow steps.
type Provider struct {
	runner ports.CommandRunner
}

// NewProvider creates a new firewall Provider.
func NewProvider(runner ports.CommandRunner) *Provider {
	return &Provider{runner: runner}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "firewall"
}

// Steps returns one allow step per port.
func (p *Provider) Steps(cfg Config) []sequence.Step {
	steps := make([]sequence.Step, 0, len(cfg.Ports))
	for _, port := range cfg.Ports {
		steps = append(steps, NewAllowStep(port, cfg.Proto, p.runner))
	}
	return steps
}
