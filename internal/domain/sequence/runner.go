package sequence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Runner executes a Sequence with fail-fast semantics.
//
// For each step the precondition is evaluated first; a satisfied step is
// skipped without running its action. Otherwise the action runs and the
// postcondition is checked. The first critical failure stops the run and
// no later action is invoked. Nothing is rolled back: re-running after a
// fix relies on preconditions to skip completed work.
type Runner struct {
	locator  ports.ToolLocator
	logger   ports.Logger
	facts    Facts
	observer Observer
	dryRun   bool
	now      func() time.Time
}

// Observer is notified as the runner moves through a sequence. Calls are
// made from the goroutine running the sequence.
type Observer interface {
	StepStarted(id StepID)
	StepFinished(result StepResult)
}

// NewRunner creates a new Runner.
func NewRunner(locator ports.ToolLocator, logger ports.Logger) *Runner {
	if logger == nil {
		logger = discard{}
	}
	return &Runner{
		locator: locator,
		logger:  logger,
		now:     time.Now,
	}
}

// WithDryRun returns a Runner that only evaluates preconditions.
func (r *Runner) WithDryRun(dryRun bool) *Runner {
	c := *r
	c.dryRun = dryRun
	return &c
}

// WithFacts returns a Runner that hands the snapshot to every step.
func (r *Runner) WithFacts(facts Facts) *Runner {
	c := *r
	c.facts = facts
	return &c
}

// WithObserver returns a Runner that reports progress to o.
func (r *Runner) WithObserver(o Observer) *Runner {
	c := *r
	c.observer = o
	return &c
}

// Plan evaluates every precondition without running any action.
func (r *Runner) Plan(ctx context.Context, seq *Sequence) (*Report, error) {
	return r.WithDryRun(true).Run(ctx, seq)
}

// Run executes all steps in order and returns the report together with
// the first fatal error, if any.
func (r *Runner) Run(ctx context.Context, seq *Sequence) (*Report, error) {
	entries := seq.Entries()
	report := &Report{
		RunID:     uuid.NewString(),
		DryRun:    r.dryRun,
		Results:   make([]StepResult, 0, len(entries)),
		StartedAt: r.now(),
		State:     RunIdle,
	}

	lc, err := newLifecycle(len(entries))
	if err != nil {
		return report, err
	}
	defer lc.stop()
	lc.start()

	log := r.logger.With(ports.F(ports.KeyRun, report.RunID))
	runCtx := NewRunContext(ctx).
		WithDryRun(r.dryRun).
		WithFacts(r.facts).
		WithLogger(log)

	unavailable, fatal := r.checkDependencies(entries)
	if fatal != nil {
		log.Error(ctx, "missing dependencies", ports.Err(fatal))
	}

	for i, entry := range entries {
		id := entry.Step().ID()

		if fatal == nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				fatal = ctxErr
			}
		}
		if fatal != nil {
			report.Results = append(report.Results,
				NewStepResult(id, OutcomeNotRun, nil).WithCriticality(entry.Criticality()))
			continue
		}

		if depErr, ok := unavailable[i]; ok {
			log.Warn(ctx, "best-effort step tolerated", ports.F(ports.KeyStep, id.String()), ports.Err(depErr))
			report.Results = append(report.Results,
				NewStepResult(id, OutcomeTolerated, depErr).WithCriticality(BestEffort))
			continue
		}

		r.notifyStarted(id)
		result := r.runStep(runCtx, entry)
		if result.Outcome() == OutcomeFailed {
			if entry.Criticality() == BestEffort {
				log.Warn(ctx, "best-effort step tolerated", ports.F(ports.KeyStep, id.String()), ports.Err(result.Error()))
				result.outcome = OutcomeTolerated
			} else {
				fatal = result.Error()
			}
		}
		r.notifyFinished(result)
		report.Results = append(report.Results, result)
	}

	report.Err = fatal
	lc.finish(fatal)
	report.State = lc.state()
	report.FinishedAt = r.now()

	if fatal != nil {
		log.Error(ctx, "provisioning aborted", ports.Err(fatal))
	} else {
		log.Info(ctx, "provisioning finished",
			ports.F("applied", report.Count(OutcomeApplied)),
			ports.F("skipped", report.Count(OutcomeSkipped)),
			ports.F(ports.KeyDuration, report.Duration().Round(time.Millisecond)))
	}

	return report, fatal
}

func (r *Runner) notifyStarted(id StepID) {
	if r.observer != nil {
		r.observer.StepStarted(id)
	}
}

func (r *Runner) notifyFinished(result StepResult) {
	if r.observer != nil {
		r.observer.StepFinished(result)
	}
}

// checkDependencies resolves every required tool before any step runs.
// Missing tools of critical steps are fatal; missing tools of best-effort
// steps only disable those steps.
func (r *Runner) checkDependencies(entries []Entry) (map[int]error, error) {
	unavailable := make(map[int]error)
	missingFatal := make(map[string]bool)
	firstStep := ""

	for i, entry := range entries {
		var missing []string
		for _, tool := range entry.Step().Requires() {
			if _, err := r.locator.LookPath(tool); err != nil {
				missing = append(missing, tool)
			}
		}
		if len(missing) == 0 {
			continue
		}

		id := entry.Step().ID().String()
		if entry.Criticality() == BestEffort {
			unavailable[i] = NewMissingDependencyError(id, missing)
			continue
		}
		if firstStep == "" {
			firstStep = id
		}
		for _, tool := range missing {
			missingFatal[tool] = true
		}
	}

	if len(missingFatal) == 0 {
		return unavailable, nil
	}

	tools := make([]string, 0, len(missingFatal))
	for tool := range missingFatal {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return unavailable, NewMissingDependencyError(firstStep, tools)
}

// runStep evaluates precondition, action and postcondition of one step.
func (r *Runner) runStep(ctx RunContext, entry Entry) StepResult {
	step := entry.Step()
	id := step.ID()
	log := ctx.Logger().With(ports.F(ports.KeyStep, id.String()))

	log.Info(ctx.Context(), "checking "+step.Explain().Summary())

	status, err := step.Check(ctx)
	if err != nil {
		return NewStepResult(id, OutcomeFailed, classify(id.String(), err, NewCheckFailedError)).
			WithCriticality(entry.Criticality())
	}

	if status == StatusSatisfied {
		log.Info(ctx.Context(), "skipped, already in place")
		return NewStepResult(id, OutcomeSkipped, nil).WithCriticality(entry.Criticality())
	}

	if ctx.DryRun() {
		return NewStepResult(id, OutcomePending, nil).WithCriticality(entry.Criticality())
	}

	log.Info(ctx.Context(), "applying")
	start := r.now()

	if err := step.Apply(ctx); err != nil {
		return NewStepResult(id, OutcomeFailed, classify(id.String(), err, NewActionFailedError)).
			WithCriticality(entry.Criticality()).
			WithActionInvoked().
			WithDuration(r.now().Sub(start))
	}

	if err := step.Verify(ctx); err != nil {
		return NewStepResult(id, OutcomeFailed, classify(id.String(), err, NewPostconditionError)).
			WithCriticality(entry.Criticality()).
			WithActionInvoked().
			WithDuration(r.now().Sub(start))
	}

	duration := r.now().Sub(start)
	log.Info(ctx.Context(), "applied", ports.F(ports.KeyDuration, duration.Round(time.Millisecond)))

	result := NewStepResult(id, OutcomeApplied, nil).
		WithCriticality(entry.Criticality()).
		WithActionInvoked().
		WithDuration(duration)

	if reporter, ok := step.(Reporter); ok {
		result = result.WithNotes(reporter.Report())
	}
	return result
}
