package pip

import (
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Provider turns the pip section into steps.
type Provider struct {
	fs ports.FileSystem
}

// NewProvider creates a new pip Provider.
func NewProvider(fs ports.FileSystem) *Provider {
	return &Provider{fs: fs}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "pip"
}

// Steps returns the index step when an index is configured.
func (p *Provider) Steps(cfg Config) []sequence.Step {
	if !cfg.Enabled() {
		return nil
	}
	return []sequence.Step{NewIndexStep(cfg, p.fs)}
}
