// Package pip points pip at a package index through its configuration file.
package pip

import (
	"fmt"
	"net/url"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// Config is the pip section of the manifest.
type Config struct {
	IndexURL    string `yaml:"index_url" toml:"index_url"`
	TrustedHost string `yaml:"trusted_host" toml:"trusted_host"`
	ConfigPath  string `yaml:"config_path" toml:"config_path"`
	BestEffort  bool   `yaml:"best_effort" toml:"best_effort"`
}

// Enabled reports whether an index is configured.
func (c Config) Enabled() bool {
	return c.IndexURL != ""
}

// Host returns the trusted host, defaulting to the index URL's host.
func (c Config) Host() string {
	if c.TrustedHost != "" {
		return c.TrustedHost
	}
	u, err := url.Parse(c.IndexURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Validate checks the index URL and host.
func (c Config) Validate() error {
	if err := validation.ValidateURL(c.IndexURL); err != nil {
		return fmt.Errorf("index_url: %w", err)
	}
	if c.TrustedHost != "" {
		if err := validation.ValidateHost(c.TrustedHost); err != nil {
			return fmt.Errorf("trusted_host: %w", err)
		}
	}
	if err := validation.ValidatePath(c.ConfigPath); err != nil {
		return fmt.Errorf("config_path: %w", err)
	}
	return nil
}
