package sequence

import (
	"context"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// Facts is the read-only view of the environment snapshot that steps may
// consult. Values are gathered lazily and cached for the rest of the run.
type Facts interface {
	AcceleratorCount(ctx context.Context) (int, error)
	ActiveEnvironment() string
}

// RunContext provides context for step execution (Check, Apply, Verify).
type RunContext struct {
	ctx    context.Context
	dryRun bool
	facts  Facts
	logger ports.Logger
}

// NewRunContext creates a new RunContext with the given context.
func NewRunContext(ctx context.Context) RunContext {
	return RunContext{ctx: ctx}
}

// Context returns the underlying context.Context.
func (r RunContext) Context() context.Context {
	return r.ctx
}

// DryRun returns whether this is a dry-run execution.
func (r RunContext) DryRun() bool {
	return r.dryRun
}

// Facts returns the environment snapshot, or nil when none was attached.
func (r RunContext) Facts() Facts {
	return r.facts
}

// Logger returns the attached logger, falling back to one stored in the
// context and finally to a logger that discards everything.
func (r RunContext) Logger() ports.Logger {
	if r.logger != nil {
		return r.logger
	}
	if r.ctx != nil {
		if l := ports.LoggerFromContext(r.ctx); l != nil {
			return l
		}
	}
	return discard{}
}

// WithDryRun returns a new RunContext with the dry-run flag set.
func (r RunContext) WithDryRun(dryRun bool) RunContext {
	r.dryRun = dryRun
	return r
}

// WithFacts returns a new RunContext carrying the given snapshot.
func (r RunContext) WithFacts(facts Facts) RunContext {
	r.facts = facts
	return r
}

// WithLogger returns a new RunContext carrying the given logger.
func (r RunContext) WithLogger(logger ports.Logger) RunContext {
	r.logger = logger
	return r
}

type discard struct{}

func (discard) Debug(context.Context, string, ...ports.Field) {}
func (discard) Info(context.Context, string, ...ports.Field)  {}
func (discard) Warn(context.Context, string, ...ports.Field)  {}
func (discard) Error(context.Context, string, ...ports.Field) {}
func (d discard) With(...ports.Field) ports.Logger           { return d }
func (discard) Level() ports.Level                           { return ports.LevelError }
func (discard) SetLevel(ports.Level)                         {}
