// Package apt installs system packages on Debian and Ubuntu hosts.
package apt

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// Config is the apt section of the manifest.
type Config struct {
	Packages   []string `yaml:"packages" toml:"packages"`
	Update     bool     `yaml:"update" toml:"update"`
	BestEffort bool     `yaml:"best_effort" toml:"best_effort"`
}

// Enabled reports whether any package is requested.
func (c Config) Enabled() bool {
	return len(c.Packages) > 0
}

// Validate checks every package name.
func (c Config) Validate() error {
	for i, pkg := range c.Packages {
		if err := validation.ValidatePackageName(pkg); err != nil {
			return fmt.Errorf("packages[%d]: %w", i, err)
		}
	}
	return nil
}

// packageName strips a "=version" pin.
func packageName(pkg string) string {
	name, _, _ := strings.Cut(pkg, "=")
	return name
}
