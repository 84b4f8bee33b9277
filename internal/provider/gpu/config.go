// Package gpu queries the accelerator inventory and enforces a minimum
// device count before anything is started on the host.
package gpu

import "fmt"

// Config is the gpu section of the manifest.
type Config struct {
	MinCount int `yaml:"min_count" toml:"min_count"`
}

// Validate checks the minimum count.
func (c Config) Validate() error {
	if c.MinCount < 1 {
		return fmt.Errorf("min_count: must be at least 1, got %d", c.MinCount)
	}
	return nil
}
