package sequence

import (
	"time"
)

// StepResult captures the outcome of a single step within a run.
type StepResult struct {
	stepID      StepID
	outcome     Outcome
	err         error
	duration    time.Duration
	criticality Criticality
	notes       []string
	invoked     bool
}

// NewStepResult creates a new StepResult.
func NewStepResult(stepID StepID, outcome Outcome, err error) StepResult {
	return StepResult{
		stepID:      stepID,
		outcome:     outcome,
		err:         err,
		criticality: Critical,
	}
}

// StepID returns the ID of the step.
func (r StepResult) StepID() StepID {
	return r.stepID
}

// Outcome returns what happened to the step.
func (r StepResult) Outcome() Outcome {
	return r.outcome
}

// Error returns any error that occurred.
func (r StepResult) Error() error {
	return r.err
}

// Duration returns how long the action and postcondition took.
func (r StepResult) Duration() time.Duration {
	return r.duration
}

// Criticality returns the failure policy the step ran under.
func (r StepResult) Criticality() Criticality {
	return r.criticality
}

// Notes returns operator instructions emitted by the step after applying.
func (r StepResult) Notes() []string {
	notes := make([]string, len(r.notes))
	copy(notes, r.notes)
	return notes
}

// ActionInvoked reports whether the step's action was started.
func (r StepResult) ActionInvoked() bool {
	return r.invoked
}

// Success returns true if the step reached its goal state.
func (r StepResult) Success() bool {
	return r.outcome == OutcomeApplied || r.outcome == OutcomeSkipped
}

// WithDuration returns a new StepResult with duration set.
func (r StepResult) WithDuration(d time.Duration) StepResult {
	r.duration = d
	return r
}

// WithActionInvoked returns a new StepResult recording that Apply ran.
func (r StepResult) WithActionInvoked() StepResult {
	r.invoked = true
	return r
}

// WithCriticality returns a new StepResult with criticality set.
func (r StepResult) WithCriticality(c Criticality) StepResult {
	r.criticality = c
	return r
}

// WithNotes returns a new StepResult carrying operator notes.
func (r StepResult) WithNotes(notes []string) StepResult {
	r.notes = make([]string, len(notes))
	copy(r.notes, notes)
	return r
}

// Report is the outcome of a whole run.
type Report struct {
	RunID      string
	State      RunState
	DryRun     bool
	Results    []StepResult
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Count returns how many steps ended with the given outcome.
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.outcome == outcome {
			n++
		}
	}
	return n
}

// Actions returns how many step actions were invoked.
func (r *Report) Actions() int {
	n := 0
	for _, res := range r.Results {
		if res.invoked {
			n++
		}
	}
	return n
}

// Succeeded returns true if no critical step failed.
func (r *Report) Succeeded() bool {
	return r.Err == nil
}
