package gpu

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
)

// ErrNoFacts is returned when a run carries no environment snapshot.
var ErrNoFacts = errors.New("no environment snapshot attached to the run")

// RequireStep gathers the accelerator count and fails the run when the host
// has fewer devices than required. It has no action: the precondition either
// holds or the run stops before any service is launched.
type RequireStep struct {
	min int
	id  sequence.StepID
}

// NewRequireStep creates a new RequireStep.
func NewRequireStep(min int) *RequireStep {
	return &RequireStep{
		min: min,
		id:  sequence.MustNewStepID("gpu:require:" + strconv.Itoa(min)),
	}
}

// ID returns the step identifier.
func (s *RequireStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the inventory tool.
func (s *RequireStep) Requires() []string {
	return []string{"nvidia-smi"}
}

// Check gathers the count through the snapshot.
func (s *RequireStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	facts := ctx.Facts()
	if facts == nil {
		return sequence.StatusUnknown, ErrNoFacts
	}
	n, err := facts.AcceleratorCount(ctx.Context())
	if err != nil {
		return sequence.StatusUnknown, err
	}
	if n < s.min {
		return sequence.StatusUnknown, sequence.NewValidationError(
			"accelerator_count", strconv.Itoa(n), strconv.Itoa(n),
			fmt.Sprintf("at least %d required", s.min),
		)
	}
	return sequence.StatusSatisfied, nil
}

// Apply cannot add hardware.
func (s *RequireStep) Apply(_ sequence.RunContext) error {
	return fmt.Errorf("at least %d accelerators are required", s.min)
}

// Verify has nothing to check.
func (s *RequireStep) Verify(_ sequence.RunContext) error {
	return nil
}

// Explain provides a human-readable explanation.
func (s *RequireStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"require accelerators",
		fmt.Sprintf("Queries nvidia-smi and requires at least %d device(s).", s.min),
	)
}

var _ sequence.Step = (*RequireStep)(nil)
