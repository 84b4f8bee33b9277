package sequence_test

import (
	"errors"

	"github.com/felixgeelhaar/gpuprep/internal/adapters/logging"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/testutil/mocks"
)

// fakeStep is a configurable step that records how often each phase ran.
type fakeStep struct {
	id       sequence.StepID
	requires []string
	checkFn  func(sequence.RunContext) (sequence.StepStatus, error)
	applyFn  func(sequence.RunContext) error
	verifyFn func(sequence.RunContext) error
	notes    []string

	checks  int
	applies int
	verifys int
}

func newFakeStep(id string) *fakeStep {
	return &fakeStep{
		id: sequence.MustNewStepID(id),
		checkFn: func(sequence.RunContext) (sequence.StepStatus, error) {
			return sequence.StatusNeedsApply, nil
		},
		applyFn:  func(sequence.RunContext) error { return nil },
		verifyFn: func(sequence.RunContext) error { return nil },
	}
}

// newStatefulStep models a real step: the action creates the marker the
// precondition and postcondition look for.
func newStatefulStep(id string, present *bool) *fakeStep {
	s := newFakeStep(id)
	s.checkFn = func(sequence.RunContext) (sequence.StepStatus, error) {
		if *present {
			return sequence.StatusSatisfied, nil
		}
		return sequence.StatusNeedsApply, nil
	}
	s.applyFn = func(sequence.RunContext) error {
		*present = true
		return nil
	}
	s.verifyFn = func(sequence.RunContext) error {
		if !*present {
			return errors.New("marker absent")
		}
		return nil
	}
	return s
}

func (s *fakeStep) ID() sequence.StepID  { return s.id }
func (s *fakeStep) Requires() []string   { return s.requires }
func (s *fakeStep) Explain() sequence.Explanation {
	return sequence.NewExplanation("fake "+s.id.String(), "")
}
func (s *fakeStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	s.checks++
	return s.checkFn(ctx)
}
func (s *fakeStep) Apply(ctx sequence.RunContext) error {
	s.applies++
	return s.applyFn(ctx)
}
func (s *fakeStep) Verify(ctx sequence.RunContext) error {
	s.verifys++
	return s.verifyFn(ctx)
}

type reportingStep struct {
	*fakeStep
}

func (s reportingStep) Report() []string { return s.fakeStep.notes }

func newRunner(locator *mocks.ToolLocator) *sequence.Runner {
	if locator == nil {
		locator = mocks.NewToolLocator()
	}
	return sequence.NewRunner(locator, logging.NewNopLogger())
}
