package gpu

import (
	"context"

	"github.com/felixgeelhaar/gpuprep/internal/domain/facts"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
)

// CountProbe asks nvidia-smi for the number of visible devices. Every output
// line repeats the total, so the first line is the count.
type CountProbe struct {
	runner ports.CommandRunner
}

// NewCountProbe creates a new CountProbe.
func NewCountProbe(runner ports.CommandRunner) *CountProbe {
	return &CountProbe{runner: runner}
}

// Name returns the fact name the probe feeds.
func (p *CountProbe) Name() string {
	return facts.FactAcceleratorCount
}

// Query runs nvidia-smi and returns its raw output.
func (p *CountProbe) Query(ctx context.Context) (string, error) {
	result, err := commandutil.Exec(ctx, p.runner, "nvidia-smi", "--query-gpu=count", "--format=csv,noheader")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

var _ facts.Probe = (*CountProbe)(nil)
