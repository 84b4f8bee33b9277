// Package config loads the gpuprep manifest: one file describing every
// piece of the host to provision, in YAML or TOML.
package config

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/felixgeelhaar/gpuprep/internal/provider/apt"
	"github.com/felixgeelhaar/gpuprep/internal/provider/build"
	"github.com/felixgeelhaar/gpuprep/internal/provider/conda"
	"github.com/felixgeelhaar/gpuprep/internal/provider/firewall"
	"github.com/felixgeelhaar/gpuprep/internal/provider/git"
	"github.com/felixgeelhaar/gpuprep/internal/provider/gpu"
	"github.com/felixgeelhaar/gpuprep/internal/provider/modelhub"
	"github.com/felixgeelhaar/gpuprep/internal/provider/pip"
	"github.com/felixgeelhaar/gpuprep/internal/provider/service"
)

// Manifest is the whole provisioning description of a host.
type Manifest struct {
	Apt       apt.Config       `yaml:"apt" toml:"apt"`
	GPU       gpu.Config       `yaml:"gpu" toml:"gpu"`
	Benchmark BenchmarkSection `yaml:"benchmark" toml:"benchmark"`
	Conda     conda.Config     `yaml:"conda" toml:"conda"`
	Pip       pip.Config       `yaml:"pip" toml:"pip"`
	Model     modelhub.Config  `yaml:"model" toml:"model"`
	Server    ServerSection    `yaml:"server" toml:"server"`
	Firewall  FirewallSection  `yaml:"firewall" toml:"firewall"`
	Metrics   MetricsSection   `yaml:"metrics" toml:"metrics"`

	source string
}

// Source returns the file the manifest was loaded from, if any.
func (m *Manifest) Source() string {
	return m.source
}

// BenchmarkSection clones and builds the collective communication
// benchmark.
type BenchmarkSection struct {
	Repo       string   `yaml:"repo" toml:"repo"`
	Ref        string   `yaml:"ref" toml:"ref"`
	Dir        string   `yaml:"dir" toml:"dir"`
	Artifact   string   `yaml:"artifact" toml:"artifact"`
	MakeArgs   []string `yaml:"make_args" toml:"make_args"`
	BestEffort bool     `yaml:"best_effort" toml:"best_effort"`
}

// Enabled reports whether a benchmark repository is configured.
func (b BenchmarkSection) Enabled() bool {
	return b.Repo != ""
}

// Git returns the clone configuration.
func (b BenchmarkSection) Git() git.Config {
	return git.Config{URL: b.Repo, Ref: b.Ref, Dest: b.Dir}
}

// Build returns the build configuration.
func (b BenchmarkSection) Build() build.Config {
	return build.Config{Dir: b.Dir, Artifact: b.Artifact, Args: b.MakeArgs}
}

// repoName returns the last path element of the repository URL without
// its .git suffix.
func (b BenchmarkSection) repoName() string {
	name := path.Base(strings.TrimSuffix(b.Repo, "/"))
	return strings.TrimSuffix(name, ".git")
}

// ServerSection describes the inference server launch. The server options
// sit directly in the section next to the launch settings.
type ServerSection struct {
	Enabled    *bool  `yaml:"enabled" toml:"enabled"`
	Name       string `yaml:"name" toml:"name"`
	Executable string `yaml:"executable" toml:"executable"`
	Entrypoint string `yaml:"entrypoint" toml:"entrypoint"`
	StateDir   string `yaml:"state_dir" toml:"state_dir"`
	Grace      string `yaml:"grace" toml:"grace"`
	BestEffort bool   `yaml:"best_effort" toml:"best_effort"`

	service.ServerSpec `yaml:",inline"`
}

// On reports whether the server is to be launched.
func (s ServerSection) On() bool {
	if s.Enabled != nil && !*s.Enabled {
		return false
	}
	return s.Model != ""
}

// Config converts the section into the launch configuration.
func (s ServerSection) Config() (service.Config, error) {
	cfg := service.Config{
		Name:       s.Name,
		Executable: s.Executable,
		Entrypoint: service.Entrypoint(s.Entrypoint),
		StateDir:   s.StateDir,
		Server:     s.ServerSpec,
	}
	grace, err := time.ParseDuration(s.Grace)
	if err != nil {
		return cfg, fmt.Errorf("grace: %w", err)
	}
	cfg.Grace = grace
	return cfg, nil
}

// FirewallSection opens ports with ufw. Ports default to the server port.
type FirewallSection struct {
	Enabled *bool `yaml:"enabled" toml:"enabled"`

	firewall.Config `yaml:",inline"`
}

// On reports whether any port is to be opened.
func (f FirewallSection) On() bool {
	if f.Enabled != nil && !*f.Enabled {
		return false
	}
	return f.Config.Enabled()
}

// MetricsSection configures the Prometheus textfile export.
type MetricsSection struct {
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// Service returns the launch configuration of a validated manifest. An
// unparsable grace period falls back to the default.
func (m *Manifest) Service() service.Config {
	cfg, err := m.Server.Config()
	if err != nil {
		cfg.Grace = DefaultGrace
	}
	return cfg
}
