package sequence

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// RunState is the lifecycle state of a provisioning run.
type RunState string

const (
	// RunIdle indicates the run has not started.
	RunIdle RunState = "idle"
	// RunRunning indicates steps are being executed.
	RunRunning RunState = "running"
	// RunSucceeded indicates every critical step reached its goal state.
	RunSucceeded RunState = "succeeded"
	// RunFailed indicates the run was aborted by a fatal error.
	RunFailed RunState = "failed"
)

// Event types for the run state machine.
const (
	EventStart    = "START"
	EventComplete = "COMPLETE"
	EventFail     = "FAIL"
	EventReset    = "RESET"
)

// runStats is the statekit context of a run.
type runStats struct {
	Steps int
}

// lifecycle tracks a single run through idle -> running -> succeeded|failed.
type lifecycle struct {
	interp *statekit.Interpreter[runStats]
}

func newLifecycle(steps int) (*lifecycle, error) {
	machine, err := statekit.NewMachine[runStats]("provisioning-run").
		WithInitial("idle").
		WithContext(runStats{Steps: steps}).
		State("idle").
		On(EventStart).Target("running").Done().
		State("running").
		On(EventComplete).Target("succeeded").
		On(EventFail).Target("failed").Done().
		State("succeeded").
		On(EventReset).Target("idle").Done().
		State("failed").
		On(EventReset).Target("idle").Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build run state machine: %w", err)
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &lifecycle{interp: interp}, nil
}

func (l *lifecycle) start() {
	l.interp.Send(statekit.Event{Type: EventStart})
}

func (l *lifecycle) finish(err error) {
	if err != nil {
		l.interp.Send(statekit.Event{Type: EventFail})
	} else {
		l.interp.Send(statekit.Event{Type: EventComplete})
	}
}

func (l *lifecycle) state() RunState {
	return RunState(l.interp.State().Value)
}

func (l *lifecycle) stop() {
	l.interp.Stop()
}
