// Package workflow assembles the standard hierarchical graph:
//
//	coordinator → planner → plan_validator → supervisor ⇄ teams → response_generator
//	                              ↓                ↓
//	                     adaptive_replanner → supervisor
package workflow

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/config"
	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/metrics"
	"github.com/ShayCichocki/rise/internal/nodes"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/internal/orchestrator/policy"
	"github.com/ShayCichocki/rise/internal/supervisor"
	"github.com/ShayCichocki/rise/internal/team"
)

// ErrNoTeams is returned when the registry is empty.
var ErrNoTeams = errors.New("at least one team is required")

// Options configures BuildHierarchical.
type Options struct {
	// Teams supplies the roster. Required.
	Teams *team.Registry
	// LLM drives the coordinator, planner, replanner and supervisor. With
	// nil the graph runs without a model: keyword planning and plan-order
	// dispatch.
	LLM llm.LLM
	// GeneratorLLM writes the final answer. Defaults to LLM.
	GeneratorLLM llm.LLM
	// Graph holds limits and validation behavior. Zero limits use the policy defaults.
	Graph config.GraphConfig
	// SkipValidation wires the planner straight to the supervisor.
	SkipValidation bool

	Logger       zerolog.Logger
	Metrics      *metrics.Recorder
	Checkpointer orchestrator.Checkpointer
	// NewID generates run and plan IDs. Defaults to UUIDs.
	NewID func() string
}

// BuildHierarchical wires the standard nodes, the supervisor and every
// registered team, and compiles the graph.
func BuildHierarchical(opts Options) (*orchestrator.Graph, error) {
	if opts.Teams == nil || opts.Teams.Count() == 0 {
		return nil, ErrNoTeams
	}
	if opts.GeneratorLLM == nil {
		opts.GeneratorLLM = opts.LLM
	}

	pol := policy.Default()
	if opts.Graph.StepLimit > 0 {
		pol.Limits.StepLimit = opts.Graph.StepLimit
	}
	if opts.Graph.ReplanLimit > 0 {
		pol.Limits.ReplanLimit = opts.Graph.ReplanLimit
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph policy: %w", err)
	}

	roster := opts.Teams.Roster()
	log := opts.Logger

	nodeOpts := []nodes.Option{nodes.WithLogger(log), nodes.WithIDGenerator(opts.NewID)}
	checker := nodes.Checker{
		Roster:  roster,
		Strict:  opts.Graph.StrictValidation,
		AutoFix: opts.Graph.AutoFix,
		NewID:   opts.NewID,
	}

	plannerNext := nodes.ValidatorName
	if opts.SkipValidation {
		plannerNext = orchestrator.Supervisor
	}
	withReplanner := !opts.SkipValidation || opts.Graph.ReplanOnToolFailure

	orchOpts := []orchestrator.Option{
		orchestrator.WithPolicy(pol),
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(opts.Metrics),
	}
	if opts.Checkpointer != nil {
		orchOpts = append(orchOpts, orchestrator.WithCheckpointer(opts.Checkpointer))
	}
	if opts.NewID != nil {
		orchOpts = append(orchOpts, orchestrator.WithIDGenerator(opts.NewID))
	}

	o := orchestrator.New(orchOpts...).
		AddNode(nodes.CoordinatorName, nodes.NewCoordinator(opts.LLM, nodeOpts...)).
		AddNode(nodes.PlannerName, nodes.NewPlanner(opts.LLM, roster, append(nodeOpts, nodes.WithNext(plannerNext))...)).
		AddNode(nodes.GeneratorName, nodes.NewGenerator(opts.GeneratorLLM, nodeOpts...)).
		SetEntryPoint(nodes.CoordinatorName)

	if !opts.SkipValidation {
		o.AddNode(nodes.ValidatorName, nodes.NewValidator(checker, nodeOpts...))
	}
	if withReplanner {
		o.AddNode(nodes.ReplannerName, nodes.NewReplanner(opts.LLM, checker, pol.Limits.ReplanLimit, nodeOpts...))
	}

	supOpts := []supervisor.Option{supervisor.WithLogger(log), supervisor.WithMetrics(opts.Metrics)}
	if opts.Graph.ReplanOnToolFailure {
		supOpts = append(supOpts, supervisor.WithReplanOnToolFailure(nodes.ReplannerName))
	}
	o.SetSupervisor(supervisor.New(opts.LLM, roster, supOpts...))

	for _, t := range opts.Teams.All() {
		if nodes.IsNode(t.Name()) {
			return nil, fmt.Errorf("team name %q collides with a graph node", t.Name())
		}
		o.AddTeam(t)
	}

	return o.Compile()
}
