package build

import (
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Provider turns build configs into make steps.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewProvider creates a new build Provider.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem) *Provider {
	return &Provider{runner: runner, fs: fs}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "build"
}

// Steps returns one make step per config that names an artifact.
func (p *Provider) Steps(builds ...Config) []sequence.Step {
	steps := make([]sequence.Step, 0, len(builds))
	for _, cfg := range builds {
		if cfg.Dir == "" || cfg.Artifact == "" {
			continue
		}
		steps = append(steps, NewMakeStep(cfg, p.runner, p.fs))
	}
	return steps
}
