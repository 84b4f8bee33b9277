package modelhub

import (
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Provider turns the model section into steps.
type Provider struct {
	runner ports.CommandRunner
	fs     ports.FileSystem
	source MetadataSource
}

// NewProvider creates a new modelhub Provider. source is only consulted
// when verification is enabled.
func NewProvider(runner ports.CommandRunner, fs ports.FileSystem, source MetadataSource) *Provider {
	return &Provider{runner: runner, fs: fs, source: source}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "model"
}

// Steps returns the download step and, when enabled, the verify step.
func (p *Provider) Steps(cfg Config) []sequence.Step {
	if !cfg.Enabled() {
		return nil
	}
	steps := []sequence.Step{NewDownloadStep(cfg, p.runner, p.fs)}
	if cfg.Verify && p.source != nil {
		steps = append(steps, NewVerifyStep(cfg, NewVerifier(p.source, p.fs), p.runner, p.fs))
	}
	return steps
}
