package config

import (
	"fmt"

	"github.com/felixgeelhaar/gpuprep/internal/provider/modelhub"
)

// Validate checks every enabled section and reports all problems at once.
func (m *Manifest) Validate() error {
	errs := NewErrorList()

	errs.AddSection("gpu", m.GPU.Validate(), "Set gpu.min_count to the number of devices the server needs.")

	if m.Apt.Enabled() {
		errs.AddSection("apt", m.Apt.Validate(), "Package names may contain letters, digits, '.', '+', '-' and an optional '=version'.")
	}

	if m.Benchmark.Enabled() {
		errs.AddSection("benchmark", m.Benchmark.Git().Validate(), "")
		errs.AddSection("benchmark", m.Benchmark.Build().Validate(), "")
	}

	if m.Conda.Enabled() {
		errs.AddSection("conda", m.Conda.Validate(), "")
	} else if len(m.Conda.Packages) > 0 || m.Conda.Activate {
		errs.AddValidation("conda.env", "packages and activation need an environment name", "Set conda.env, for example 'vllm'.")
	}

	if m.Pip.Enabled() {
		errs.AddSection("pip", m.Pip.Validate(), "")
	}

	if m.Model.Enabled() {
		errs.AddSection("model", m.Model.Validate(), "")
		if m.Model.Verify && m.Model.Hub != modelhub.HubModelScope {
			errs.AddValidation("model.verify", fmt.Sprintf("integrity verification needs file metadata from %s, hub is %s", modelhub.HubModelScope, m.Model.Hub),
				"Disable model.verify or download from modelscope.")
		}
	}

	if m.Server.On() {
		cfg, err := m.Server.Config()
		if err != nil {
			errs.AddValidation("server.grace", err.Error(), "Use a Go duration such as '10s' or '1m'.")
		} else {
			errs.AddSection("server", cfg.Validate(), "")
		}
	}

	if m.Firewall.On() {
		errs.AddSection("firewall", m.Firewall.Config.Validate(), "")
	}

	return errs.AsError()
}
