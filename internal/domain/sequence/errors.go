package sequence

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for the provisioning error taxonomy.
const (
	ErrCodeMissingDependency   = "MISSING_DEPENDENCY"
	ErrCodeActionFailed        = "ACTION_FAILED"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodePostconditionFailed = "POSTCONDITION_FAILED"
	ErrCodeCheckFailed         = "CHECK_FAILED"
	ErrCodeStepDuplicate       = "STEP_DUPLICATE"
)

// StepError is a classified provisioning failure.
type StepError struct {
	Code       string // Error code for categorization
	Message    string // User-friendly error message
	StepID     string // Step ID if applicable
	Suggestion string // Actionable suggestion to fix the error
	Output     string // Captured diagnostic output, e.g. a log tail
	Underlying error  // Wrapped error for error chain
}

// Error returns the formatted error message.
func (e *StepError) Error() string {
	msg := e.Message
	if e.StepID != "" {
		msg = fmt.Sprintf("step %q: %s", e.StepID, e.Message)
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain support.
func (e *StepError) Unwrap() error {
	return e.Underlying
}

// Is supports errors.Is() for comparing error codes.
func (e *StepError) Is(target error) bool {
	if t, ok := target.(*StepError); ok {
		return e.Code == t.Code
	}
	return false
}

// Format returns a fully formatted error with all details.
func (e *StepError) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.StepID != "" {
		fmt.Fprintf(&b, "\n  Step: %s", e.StepID)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	if e.Underlying != nil {
		fmt.Fprintf(&b, "\n  Cause: %s", e.Underlying.Error())
	}
	if e.Output != "" {
		b.WriteString("\n  Output:")
		for _, line := range strings.Split(strings.TrimRight(e.Output, "\n"), "\n") {
			b.WriteString("\n    " + line)
		}
	}

	return b.String()
}

// WithStepID returns a copy with the step ID set.
func (e *StepError) WithStepID(stepID string) *StepError {
	c := *e
	c.StepID = stepID
	return &c
}

// WithOutput returns a copy carrying captured diagnostic output.
func (e *StepError) WithOutput(output string) *StepError {
	c := *e
	c.Output = output
	return &c
}

// WithSuggestion returns a copy with suggestion set.
func (e *StepError) WithSuggestion(suggestion string) *StepError {
	c := *e
	c.Suggestion = suggestion
	return &c
}

// Sentinels for errors.Is comparisons by code.
var (
	ErrMissingDependency   = &StepError{Code: ErrCodeMissingDependency}
	ErrActionFailed        = &StepError{Code: ErrCodeActionFailed}
	ErrValidationFailed    = &StepError{Code: ErrCodeValidationFailed}
	ErrPostconditionFailed = &StepError{Code: ErrCodePostconditionFailed}
	ErrCheckFailed         = &StepError{Code: ErrCodeCheckFailed}
)

// AsStepError extracts a *StepError from an error chain.
func AsStepError(err error) (*StepError, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}

// CodeOf returns the classification code of err, or "" if unclassified.
func CodeOf(err error) string {
	if stepErr, ok := AsStepError(err); ok {
		return stepErr.Code
	}
	return ""
}

// NewMissingDependencyError creates an error for executables absent from PATH.
func NewMissingDependencyError(stepID string, tools []string) *StepError {
	return &StepError{
		Code:       ErrCodeMissingDependency,
		Message:    fmt.Sprintf("required tool(s) not found: %s", strings.Join(tools, ", ")),
		StepID:     stepID,
		Suggestion: "Install the missing tools or add them to PATH, then re-run.",
	}
}

// NewActionFailedError creates an error for a collaborator call that failed.
func NewActionFailedError(stepID string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeActionFailed,
		Message:    "step action failed",
		StepID:     stepID,
		Suggestion: "Fix the reported problem and re-run; completed steps will be skipped.",
		Underlying: err,
	}
}

// NewValidationError creates an error for a gathered fact of the wrong shape.
// Both the raw text and what it parsed to are kept for diagnosis.
func NewValidationError(fact, raw, parsed, reason string) *StepError {
	return &StepError{
		Code:       ErrCodeValidationFailed,
		Message:    fmt.Sprintf("fact %q is invalid: %s (raw=%q, parsed=%s)", fact, reason, raw, parsed),
		Suggestion: "Check that the inventory tool works on this host.",
	}
}

// NewPostconditionError creates an error for an action that reported success
// while the expected state is absent afterwards.
func NewPostconditionError(stepID string, err error) *StepError {
	return &StepError{
		Code:       ErrCodePostconditionFailed,
		Message:    "action reported success but the expected state is absent",
		StepID:     stepID,
		Suggestion: "The tool may have failed silently or partially; inspect its output and re-run.",
		Underlying: err,
	}
}

// NewCheckFailedError creates an error for a precondition that could not be evaluated.
func NewCheckFailedError(stepID string, err error) *StepError {
	return &StepError{
		Code:       ErrCodeCheckFailed,
		Message:    "step precondition check failed",
		StepID:     stepID,
		Suggestion: "The step could not determine its current state.",
		Underlying: err,
	}
}

// NewStepDuplicateError creates an error for duplicate step ID.
func NewStepDuplicateError(stepID string) *StepError {
	return &StepError{
		Code:       ErrCodeStepDuplicate,
		Message:    "step with this ID already exists in the sequence",
		StepID:     stepID,
		Suggestion: "Each step must have a unique ID. Check for repeated entries in the manifest.",
	}
}

// outputCarrier is implemented by errors that captured a tool's output.
type outputCarrier interface {
	CommandOutput() string
}

// classify attaches a step ID to err, keeping an existing classification.
// Output captured anywhere in the chain is carried over.
func classify(stepID string, err error, fallback func(string, error) *StepError) *StepError {
	stepErr, ok := AsStepError(err)
	if !ok {
		stepErr = fallback(stepID, err)
	} else if stepErr.StepID == "" {
		stepErr = stepErr.WithStepID(stepID)
	}

	var carrier outputCarrier
	if stepErr.Output == "" && errors.As(err, &carrier) {
		if out := carrier.CommandOutput(); out != "" {
			stepErr = stepErr.WithOutput(out)
		}
	}
	return stepErr
}
