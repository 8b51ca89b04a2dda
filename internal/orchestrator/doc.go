// Package orchestrator assembles components into a routed graph and walks it.
//
// Every component implements one contract:
//
//	Execute(ctx, models.RunState) (Directive, error)
//
// A Directive carries a partial state update and the name of the next
// component, or Terminate. Components never mutate the state they are
// given; the graph applies each update and hands the next component a
// fresh copy.
//
// Routing is closed: each component declares the targets it can produce
// through Routes, and Compile rejects any declared target that does not
// resolve to a registered component or Terminate. A component that returns
// an undeclared target at run time aborts the run.
//
// A compiled Graph walks strictly sequentially within one invocation.
// Invocations for different thread IDs may run in parallel; invocations for
// the same thread are serialized. Runs end at Terminate, at the step limit
// (ErrStepLimitExceeded), or when a component returns a Directive carrying
// an error such as ErrReplanLimitExceeded.
//
// Basic usage:
//
//	o := orchestrator.New(orchestrator.WithCheckpointer(store))
//	o.AddNode("coordinator", coordinator)
//	o.AddTeam(mathTeam)
//	o.SetSupervisor(supervisor)
//	o.SetEntryPoint("coordinator")
//	g, err := o.Compile()
//	final, err := g.Invoke(ctx, threadID, models.UserTurn("Calculate the sum of 10, 20, 30"))
package orchestrator
