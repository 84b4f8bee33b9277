package git

import (
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Provider turns repository configs into clone steps.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewProvider creates a new git Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{runner: runner, fs: fs}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "git"
}

// Steps returns one clone step per repository with a URL.
func (p *Provider) Steps(repos ...Config) []sequence.Step {
	steps := make([]sequence.Step, 0, len(repos))
	for _, cfg := range repos {
		if cfg.URL == "" {
			continue
		}
		steps = append(steps, NewCloneStep(cfg, p.runner, p.fs))
	}
	return steps
}
