package config

import (
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/conda"
	"github.com/felixgeelhaar/gpuprep/internal/provider/modelhub"
	"github.com/felixgeelhaar/gpuprep/internal/provider/service"
)

// Defaults applied to every manifest.
const (
	DefaultPort                 = 8000
	DefaultHost                 = "0.0.0.0"
	DefaultGPUMemoryUtilization = 0.90
	DefaultMaxNumSeqs           = 256
	DefaultDType                = "auto"
	DefaultLogLevel             = "info"
	DefaultGrace                = 10 * time.Second
	DefaultMinGPUs              = 1
	DefaultPython               = "3.10"
	DefaultServerName           = "vllm"
	DefaultArtifact             = "build/all_reduce_perf"
	DefaultProto                = "tcp"

	DefaultCondaPrefix = "~/miniconda3"
	DefaultRCFile      = "~/.bashrc"
	DefaultPipConfig   = "~/.config/pip/pip.conf"
	DefaultCacheDir    = "~/models"
	DefaultStateDir    = "~/.local/state/gpuprep"
	DefaultSourceDir   = "~/src"
)

// ApplyDefaults fills unset fields and expands ~ in every path. Values
// that depend on other sections are derived here too: the server runs the
// downloaded model from the conda environment, and the firewall opens the
// server port.
func (m *Manifest) ApplyDefaults() {
	if m.GPU.MinCount == 0 {
		m.GPU.MinCount = DefaultMinGPUs
	}

	b := &m.Benchmark
	if b.Enabled() {
		if b.Dir == "" {
			b.Dir = filepath.Join(DefaultSourceDir, b.repoName())
		}
		if b.Artifact == "" {
			b.Artifact = DefaultArtifact
		}
		b.Dir = ports.ExpandPath(b.Dir)
	}

	c := &m.Conda
	c.Prefix = ports.ExpandPath(orDefault(c.Prefix, DefaultCondaPrefix))
	c.RCFile = ports.ExpandPath(orDefault(c.RCFile, DefaultRCFile))
	c.InstallerURL = orDefault(c.InstallerURL, conda.DefaultInstallerURL)
	c.Python = orDefault(c.Python, DefaultPython)

	m.Pip.ConfigPath = ports.ExpandPath(orDefault(m.Pip.ConfigPath, DefaultPipConfig))

	md := &m.Model
	md.CacheDir = ports.ExpandPath(orDefault(md.CacheDir, DefaultCacheDir))
	if md.Hub == "" {
		md.Hub = modelhub.HubModelScope
	}
	md.Revision = orDefault(md.Revision, modelhub.DefaultRevision(md.Hub))
	md.APIBase = orDefault(md.APIBase, modelhub.DefaultAPIBase)
	md.Client = ports.ExpandPath(orDefault(md.Client, m.condaTool(modelhub.ClientBinary(md.Hub))))

	m.applyServerDefaults()

	f := &m.Firewall
	f.Proto = orDefault(f.Proto, DefaultProto)
	if len(f.Ports) == 0 && m.Server.On() {
		f.Ports = []int{m.Server.Port}
	}

	if m.Metrics.Textfile != "" {
		m.Metrics.Textfile = ports.ExpandPath(m.Metrics.Textfile)
	}
}

func (m *Manifest) applyServerDefaults() {
	s := &m.Server
	if s.Model == "" && m.Model.Enabled() {
		s.Model = m.Model.Dest()
	}
	s.Name = orDefault(s.Name, DefaultServerName)
	s.Entrypoint = orDefault(s.Entrypoint, string(service.EntrypointServe))
	s.StateDir = ports.ExpandPath(orDefault(s.StateDir, DefaultStateDir))
	s.Grace = orDefault(s.Grace, DefaultGrace.String())
	s.Host = orDefault(s.Host, DefaultHost)
	s.DType = orDefault(s.DType, DefaultDType)
	s.LogLevel = orDefault(s.LogLevel, DefaultLogLevel)
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.GPUMemoryUtilization == 0 {
		s.GPUMemoryUtilization = DefaultGPUMemoryUtilization
	}
	if s.MaxNumSeqs == 0 {
		s.MaxNumSeqs = DefaultMaxNumSeqs
	}
	if s.Executable == "" {
		bin := "vllm"
		if service.Entrypoint(s.Entrypoint) == service.EntrypointAPIServer {
			bin = "python"
		}
		s.Executable = m.condaTool(bin)
	}
	s.Executable = ports.ExpandPath(s.Executable)
}

// condaTool returns bin inside the conda environment when one is
// configured, and bin for a PATH lookup otherwise. The environment is
// populated by the conda steps, which run before the model and server.
func (m *Manifest) condaTool(bin string) string {
	if !m.Conda.Enabled() {
		return bin
	}
	return filepath.Join(m.Conda.Prefix, "envs", m.Conda.Env, "bin", bin)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
