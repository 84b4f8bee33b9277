// Package firewall opens the server port with ufw.
package firewall

import "fmt"

// Config is the firewall section of the manifest.
type Config struct {
	Ports    []int  `yaml:"ports" toml:"ports"`
	Proto    string `yaml:"proto" toml:"proto"`
	Critical bool   `yaml:"critical" toml:"critical"`
}

// Enabled reports whether any port is to be opened.
func (c Config) Enabled() bool {
	return len(c.Ports) > 0
}

// Validate checks ports and protocol.
func (c Config) Validate() error {
	for i, p := range c.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("ports[%d]: must be in 1-65535, got %d", i, p)
		}
	}
	switch c.Proto {
	case "tcp", "udp":
		return nil
	}
	return fmt.Errorf("proto: must be tcp or udp, got %q", c.Proto)
}
