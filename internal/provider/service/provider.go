package service

import (
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Provider turns the server section into a launch step.
type Provider struct {
	launcher ports.ProcessLauncher
	fs       ports.FileSystem
}

// NewProvider creates a new service Provider.
func NewProvider(launcher ports.ProcessLauncher, fs ports.FileSystem) *Provider {
	return &Provider{launcher: launcher, fs: fs}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "service"
}

// Steps returns the launch step when a model is configured for serving.
func (p *Provider) Steps(cfg Config) []sequence.Step {
	if !cfg.Enabled() {
		return nil
	}
	return []sequence.Step{NewLaunchStep(cfg, p.launcher, p.fs)}
}
