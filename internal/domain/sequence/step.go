// Package sequence runs ordered, idempotent provisioning steps with
// fail-fast semantics.
package sequence

// Step is an idempotent unit of provisioning work.
//
// Check is the precondition: it must not change anything and reports
// StatusSatisfied when the goal state already holds. Apply is the action.
// Verify is the postcondition and runs after every successful Apply.
type Step interface {
	// ID returns the unique identifier for this step.
	ID() StepID

	// Requires lists executables that must be on PATH before the run starts.
	Requires() []string

	// Check determines whether the action needs to run.
	Check(ctx RunContext) (StepStatus, error)

	// Apply performs the side-effecting action.
	Apply(ctx RunContext) error

	// Verify confirms that Apply reached the goal state.
	Verify(ctx RunContext) error

	// Explain returns human-readable context for this step.
	Explain() Explanation
}

// Reporter is implemented by steps that have something to tell the
// operator once they have been applied, such as where a service logs.
type Reporter interface {
	Report() []string
}

// Criticality decides whether a step failure aborts the sequence.
type Criticality string

const (
	// Critical failures abort the run. This is the default.
	Critical Criticality = "critical"
	// BestEffort failures are recorded and the run continues.
	BestEffort Criticality = "best-effort"
)

// Explanation provides context for why a step exists and what it does.
type Explanation struct {
	summary string
	detail  string
}

// NewExplanation creates a new Explanation.
func NewExplanation(summary, detail string) Explanation {
	return Explanation{summary: summary, detail: detail}
}

// Summary returns a brief description of what the step does.
func (e Explanation) Summary() string {
	return e.summary
}

// Detail returns a longer explanation with context.
func (e Explanation) Detail() string {
	return e.detail
}

// IsEmpty returns true if this explanation has no content.
func (e Explanation) IsEmpty() bool {
	return e.summary == "" && e.detail == ""
}
