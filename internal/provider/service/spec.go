package service

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// ServerSpec holds the options passed to the inference server.
type ServerSpec struct {
	Model                string   `yaml:"model" toml:"model"`
	ServedModelName      string   `yaml:"served_model_name" toml:"served_model_name"`
	TensorParallelSize   int      `yaml:"tensor_parallel_size" toml:"tensor_parallel_size"`
	GPUMemoryUtilization float64  `yaml:"gpu_memory_utilization" toml:"gpu_memory_utilization"`
	MaxNumSeqs           int      `yaml:"max_num_seqs" toml:"max_num_seqs"`
	Host                 string   `yaml:"host" toml:"host"`
	Port                 int      `yaml:"port" toml:"port"`
	LogLevel             string   `yaml:"log_level" toml:"log_level"`
	TrustRemoteCode      bool     `yaml:"trust_remote_code" toml:"trust_remote_code"`
	DType                string   `yaml:"dtype" toml:"dtype"`
	ExtraArgs            []string `yaml:"extra_args" toml:"extra_args"`
}

var (
	dtypes    = []string{"auto", "half", "float16", "bfloat16", "float", "float32"}
	logLevels = []string{"critical", "error", "warning", "info", "debug", "trace"}
)

// Validate checks value ranges and rejects arguments that could be read
// as shell constructs.
func (s ServerSpec) Validate() error {
	if err := validation.ValidatePath(s.Model); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if s.TensorParallelSize < 0 {
		return fmt.Errorf("tensor_parallel_size: must not be negative, got %d", s.TensorParallelSize)
	}
	if s.GPUMemoryUtilization <= 0 || s.GPUMemoryUtilization > 1 {
		return fmt.Errorf("gpu_memory_utilization: must be in (0, 1], got %g", s.GPUMemoryUtilization)
	}
	if s.MaxNumSeqs < 1 {
		return fmt.Errorf("max_num_seqs: must be at least 1, got %d", s.MaxNumSeqs)
	}
	if err := validation.ValidateHost(s.Host); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port: must be in 1-65535, got %d", s.Port)
	}
	if !lo.Contains(logLevels, s.LogLevel) {
		return fmt.Errorf("log_level: unknown level %q", s.LogLevel)
	}
	if !lo.Contains(dtypes, s.DType) {
		return fmt.Errorf("dtype: unknown dtype %q", s.DType)
	}
	if s.ServedModelName != "" {
		if err := validation.ValidateArgument(s.ServedModelName); err != nil {
			return fmt.Errorf("served_model_name: %w", err)
		}
	}
	for i, arg := range s.ExtraArgs {
		if err := validation.ValidateArgument(arg); err != nil {
			return fmt.Errorf("extra_args[%d]: %w", i, err)
		}
	}
	return nil
}

// Args renders the command line after the executable. tensorParallel
// replaces a zero TensorParallelSize. The order is fixed so that the same
// spec always produces the same command line.
func (s ServerSpec) Args(entrypoint Entrypoint, tensorParallel int) []string {
	var args []string
	switch entrypoint {
	case EntrypointAPIServer:
		args = []string{"-m", "vllm.entrypoints.openai.api_server", "--model=" + s.Model}
	default:
		args = []string{"serve", s.Model}
	}

	tp := s.TensorParallelSize
	if tp == 0 {
		tp = tensorParallel
	}

	flag := func(key, value string) {
		args = append(args, fmt.Sprintf("--%s=%s", key, value))
	}
	if s.ServedModelName != "" {
		flag("served-model-name", s.ServedModelName)
	}
	if tp > 0 {
		flag("tensor-parallel-size", strconv.Itoa(tp))
	}
	flag("gpu-memory-utilization", strconv.FormatFloat(s.GPUMemoryUtilization, 'f', -1, 64))
	flag("max-num-seqs", strconv.Itoa(s.MaxNumSeqs))
	flag("host", s.Host)
	flag("port", strconv.Itoa(s.Port))
	flag("uvicorn-log-level", s.LogLevel)
	flag("dtype", s.DType)
	if s.TrustRemoteCode {
		args = append(args, "--trust-remote-code")
	}
	return append(args, s.ExtraArgs...)
}
