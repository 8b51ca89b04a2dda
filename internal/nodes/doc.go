// Package nodes provides the standard graph components that surround the
// teams: the coordinator that opens a run, the planner, the plan validator,
// the adaptive replanner and the response generator that closes it.
//
// Every node implements orchestrator.Component. Nodes read a copy of the run
// state and describe their changes in the returned Directive; they never keep
// per-run state of their own, so one instance serves concurrent threads.
package nodes
