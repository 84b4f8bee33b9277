// Package conda installs Miniconda and prepares the runtime environment the
// inference server runs in.
package conda

import (
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// DefaultInstallerURL is the Miniconda batch installer for x86_64 Linux.
const DefaultInstallerURL = "https://repo.anaconda.com/miniconda/Miniconda3-latest-Linux-x86_64.sh"

// Config is the conda section of the manifest.
type Config struct {
	Prefix       string   `yaml:"prefix" toml:"prefix"`
	InstallerURL string   `yaml:"installer_url" toml:"installer_url"`
	RCFile       string   `yaml:"rc_file" toml:"rc_file"`
	Env          string   `yaml:"env" toml:"env"`
	Python       string   `yaml:"python" toml:"python"`
	Packages     []string `yaml:"packages" toml:"packages"`
	SkipInit     bool     `yaml:"skip_init" toml:"skip_init"`
	Activate     bool     `yaml:"activate" toml:"activate"`
	BestEffort   bool     `yaml:"best_effort" toml:"best_effort"`
}

// Enabled reports whether an environment is configured.
func (c Config) Enabled() bool {
	return c.Env != ""
}

// CondaBin returns the absolute path of the conda executable under Prefix.
// The binary is not on PATH until the installer step has run, so every
// step calls it by this path.
func (c Config) CondaBin() string {
	return filepath.Join(c.Prefix, "bin", "conda")
}

// EnvDir returns the directory "conda create -n" creates for Env.
func (c Config) EnvDir() string {
	return filepath.Join(c.Prefix, "envs", c.Env)
}

// Validate checks names and versions that are passed to conda.
func (c Config) Validate() error {
	if err := validation.ValidatePath(c.Prefix); err != nil {
		return fmt.Errorf("prefix: %w", err)
	}
	if !filepath.IsAbs(c.Prefix) {
		return fmt.Errorf("prefix: %q must be an absolute path", c.Prefix)
	}
	if err := validation.ValidateURL(c.InstallerURL); err != nil {
		return fmt.Errorf("installer_url: %w", err)
	}
	if err := validation.ValidateEnvName(c.Env); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	if err := validation.ValidatePythonVersion(c.Python); err != nil {
		return fmt.Errorf("python: %w", err)
	}
	for i, pkg := range c.Packages {
		if err := validation.ValidatePipPackage(pkg); err != nil {
			return fmt.Errorf("packages[%d]: %w", i, err)
		}
	}
	return nil
}
