package orchestrator

import (
	"context"

	"github.com/ShayCichocki/rise/pkg/models"
)

// Target names the component a Directive routes to.
type Target string

// Reserved targets.
const (
	// Terminate ends the run.
	Terminate Target = "__end__"
	// Supervisor is the name the supervisor is registered under.
	Supervisor Target = "supervisor"
)

// String implements fmt.Stringer.
func (t Target) String() string {
	return string(t)
}

// Directive is the result of a component step: how to change the state and
// where to go next.
type Directive struct {
	// Update is applied to the run state before routing.
	Update models.StateUpdate
	// Next is the component to run next, or Terminate.
	Next Target
	// Err ends the run with this error after Update is applied.
	Err error
}

// Goto routes to next with the given update.
func Goto(next Target, update models.StateUpdate) Directive {
	return Directive{Update: update, Next: next}
}

// End applies update and terminates the run.
func End(update models.StateUpdate) Directive {
	return Directive{Update: update, Next: Terminate}
}

// Fail applies update and terminates the run with err.
func Fail(err error, update models.StateUpdate) Directive {
	return Directive{Update: update, Next: Terminate, Err: err}
}

// Component is a unit of work in the graph.
type Component interface {
	// Execute inspects a copy of the run state and returns a Directive.
	// A non-nil error is fatal and aborts the run.
	Execute(ctx context.Context, state models.RunState) (Directive, error)
	// Routes lists every target Execute can return.
	Routes() []Target
}

// Team is a component registered under its own name and listed in the
// supervisor's roster.
type Team interface {
	Component
	Name() string
}

// ComponentFunc adapts a function and its declared routes to a Component.
type ComponentFunc struct {
	Fn      func(ctx context.Context, state models.RunState) (Directive, error)
	Targets []Target
}

// Func returns a Component backed by fn that may route to targets.
func Func(fn func(ctx context.Context, state models.RunState) (Directive, error), targets ...Target) *ComponentFunc {
	return &ComponentFunc{Fn: fn, Targets: targets}
}

// Execute implements Component.
func (c *ComponentFunc) Execute(ctx context.Context, state models.RunState) (Directive, error) {
	return c.Fn(ctx, state)
}

// Routes implements Component.
func (c *ComponentFunc) Routes() []Target {
	return c.Targets
}
