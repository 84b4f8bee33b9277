// Package service launches the inference server as a detached process and
// keeps only its pidfile and log afterwards.
package service

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// Entrypoint selects how the server binary is invoked.
type Entrypoint string

// Supported entrypoints.
const (
	// EntrypointServe runs "vllm serve <model>".
	EntrypointServe Entrypoint = "serve"
	// EntrypointAPIServer runs "python -m vllm.entrypoints.openai.api_server".
	EntrypointAPIServer Entrypoint = "api_server"
)

// Config is the server section of the manifest.
type Config struct {
	Name       string
	Executable string
	Entrypoint Entrypoint
	StateDir   string
	Grace      time.Duration
	Server     ServerSpec
}

// Enabled reports whether a server is configured.
func (c Config) Enabled() bool {
	return c.Server.Model != ""
}

// PIDFile returns the path the launched PID is recorded in.
func (c Config) PIDFile() string {
	return filepath.Join(c.StateDir, c.Name+".pid")
}

// LogFile returns the path the server's stdout and stderr go to.
func (c Config) LogFile() string {
	return filepath.Join(c.StateDir, c.Name+".log")
}

// Validate checks the launch settings and the server options.
func (c Config) Validate() error {
	if err := validation.ValidateEnvName(c.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if err := validation.ValidatePath(c.Executable); err != nil {
		return fmt.Errorf("executable: %w", err)
	}
	switch c.Entrypoint {
	case EntrypointServe, EntrypointAPIServer:
	default:
		return fmt.Errorf("entrypoint: unknown entrypoint %q (expected %s or %s)", c.Entrypoint, EntrypointServe, EntrypointAPIServer)
	}
	if err := validation.ValidatePath(c.StateDir); err != nil {
		return fmt.Errorf("state_dir: %w", err)
	}
	if c.Grace <= 0 {
		return fmt.Errorf("grace: must be positive, got %s", c.Grace)
	}
	return c.Server.Validate()
}
