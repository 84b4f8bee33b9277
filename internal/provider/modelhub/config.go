// Package modelhub downloads model weights from a model hub and checks them
// against the hub's published file metadata.
package modelhub

import (
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// Hub names a model hub client.
type Hub string

// Supported hubs.
const (
	HubModelScope  Hub = "modelscope"
	HubHuggingFace Hub = "huggingface"
)

// DefaultAPIBase is the ModelScope endpoint used for file metadata.
const DefaultAPIBase = "https://modelscope.cn"

// Config is the model section of the manifest.
type Config struct {
	ID         string `yaml:"id" toml:"id"`
	CacheDir   string `yaml:"cache_dir" toml:"cache_dir"`
	Hub        Hub    `yaml:"hub" toml:"hub"`
	Revision   string `yaml:"revision" toml:"revision"`
	Client     string `yaml:"client" toml:"client"`
	Verify     bool   `yaml:"verify" toml:"verify"`
	APIBase    string `yaml:"api_base" toml:"api_base"`
	BestEffort bool   `yaml:"best_effort" toml:"best_effort"`
}

// Enabled reports whether a model is configured.
func (c Config) Enabled() bool {
	return c.ID != ""
}

// ClientBinary returns the command line client of a hub.
func ClientBinary(hub Hub) string {
	if hub == HubHuggingFace {
		return "huggingface-cli"
	}
	return "modelscope"
}

// DefaultRevision returns the branch a hub serves when no revision is set.
func DefaultRevision(hub Hub) string {
	if hub == HubHuggingFace {
		return "main"
	}
	return "master"
}

// client returns the configured client, or the hub's client on PATH.
func (c Config) client() string {
	if c.Client != "" {
		return c.Client
	}
	return ClientBinary(c.Hub)
}

// Dest returns the directory the weights are downloaded into.
func (c Config) Dest() string {
	return filepath.Join(c.CacheDir, filepath.FromSlash(c.ID))
}

// Validate checks the model identifier, cache directory and hub.
func (c Config) Validate() error {
	if err := validation.ValidateModelID(c.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if err := validation.ValidatePath(c.CacheDir); err != nil {
		return fmt.Errorf("cache_dir: %w", err)
	}
	switch c.Hub {
	case HubModelScope, HubHuggingFace:
	default:
		return fmt.Errorf("hub: unknown hub %q (expected %s or %s)", c.Hub, HubModelScope, HubHuggingFace)
	}
	if err := validation.ValidateBranch(c.Revision); err != nil {
		return fmt.Errorf("revision: %w", err)
	}
	if c.Verify {
		if err := validation.ValidateURL(c.APIBase); err != nil {
			return fmt.Errorf("api_base: %w", err)
		}
	}
	return nil
}
