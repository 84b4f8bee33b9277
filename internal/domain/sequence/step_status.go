package sequence

// StepStatus is the answer of a step's precondition check.
type StepStatus string

const (
	// StatusSatisfied indicates the step's goal state already holds.
	StatusSatisfied StepStatus = "satisfied"
	// StatusNeedsApply indicates the step's action must run.
	StatusNeedsApply StepStatus = "needs-apply"
	// StatusUnknown indicates the state could not be determined.
	StatusUnknown StepStatus = "unknown"
)

// String returns the string representation of the status.
func (s StepStatus) String() string {
	return string(s)
}

// NeedsAction returns true if the step's action would run.
func (s StepStatus) NeedsAction() bool {
	switch s {
	case StatusNeedsApply, StatusUnknown:
		return true
	case StatusSatisfied:
		return false
	}
	return false
}

// Outcome is what actually happened to a step during a run.
type Outcome string

const (
	// OutcomeSkipped means the precondition held and the action did not run.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeApplied means the action ran and the postcondition held.
	OutcomeApplied Outcome = "applied"
	// OutcomePending means the action would run (dry-run only).
	OutcomePending Outcome = "pending"
	// OutcomeFailed means the step failed and aborted the run.
	OutcomeFailed Outcome = "failed"
	// OutcomeTolerated means a best-effort step failed and the run went on.
	OutcomeTolerated Outcome = "tolerated"
	// OutcomeNotRun means an earlier failure stopped the run first.
	OutcomeNotRun Outcome = "not-run"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// Outcomes lists every outcome in display order.
func Outcomes() []Outcome {
	return []Outcome{OutcomeApplied, OutcomeSkipped, OutcomePending, OutcomeTolerated, OutcomeFailed, OutcomeNotRun}
}
