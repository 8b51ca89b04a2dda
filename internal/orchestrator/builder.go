package orchestrator

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/graph"
	"github.com/ShayCichocki/rise/internal/orchestrator/policy"
)

// Orchestrator collects components and compiles them into a Graph.
// It is not safe for concurrent use; build it from one goroutine.
type Orchestrator struct {
	opts       orchestratorOptions
	order      []Target
	components map[Target]Component
	teams      []Target
	entry      Target
	problems   []string
}

// New creates an empty orchestrator.
func New(opts ...Option) *Orchestrator {
	o := orchestratorOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	pol := policy.Default()
	if o.policyConfig != nil {
		copied := *o.policyConfig
		pol = &copied
	}
	if o.stepLimit > 0 {
		pol.Limits.StepLimit = o.stepLimit
	}
	_ = pol.Validate()
	o.policyConfig = pol
	if o.newID == nil {
		o.newID = func() string { return uuid.New().String() }
	}

	return &Orchestrator{
		opts:       o,
		components: make(map[Target]Component),
	}
}

// AddNode registers a component under name.
func (o *Orchestrator) AddNode(name Target, c Component) *Orchestrator {
	o.register(name, c)
	return o
}

// AddTeam registers a team under its own name and adds it to the roster.
func (o *Orchestrator) AddTeam(t Team) *Orchestrator {
	if t == nil {
		o.problems = append(o.problems, "nil team")
		return o
	}
	name := Target(t.Name())
	if o.register(name, t) {
		o.teams = append(o.teams, name)
	}
	return o
}

// SetSupervisor registers the supervisor under the reserved Supervisor name.
func (o *Orchestrator) SetSupervisor(c Component) *Orchestrator {
	o.register(Supervisor, c)
	return o
}

// SetEntryPoint sets the component a run starts at.
func (o *Orchestrator) SetEntryPoint(name Target) *Orchestrator {
	o.entry = name
	return o
}

func (o *Orchestrator) register(name Target, c Component) bool {
	switch {
	case name == "":
		o.problems = append(o.problems, "component with empty name")
		return false
	case name == Terminate:
		o.problems = append(o.problems, fmt.Sprintf("%q is reserved", Terminate))
		return false
	case c == nil:
		o.problems = append(o.problems, fmt.Sprintf("component %q is nil", name))
		return false
	}
	if _, dup := o.components[name]; dup {
		o.problems = append(o.problems, fmt.Sprintf("component %q registered twice", name))
		return false
	}
	o.components[name] = c
	o.order = append(o.order, name)
	return true
}

// Compile validates the component table and returns a runnable Graph.
// Every failure is reported together in a *BuildError.
func (o *Orchestrator) Compile() (*Graph, error) {
	problems := slices.Clone(o.problems)

	routes := graph.NewRouteGraph(string(o.entry))
	declared := make(map[Target][]Target, len(o.components))
	for _, name := range o.order {
		targets := slices.Clone(o.components[name].Routes())
		declared[name] = targets
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = string(t)
		}
		routes.AddNode(string(name), names...)
	}

	switch {
	case len(o.components) == 0:
		problems = append(problems, "no components registered")
	case o.entry == "":
		problems = append(problems, "entry point not set")
	case !routes.Has(string(o.entry)):
		problems = append(problems, fmt.Sprintf("entry point %q is not a registered component", o.entry))
	}

	for _, r := range routes.Unresolved(string(Terminate)) {
		problems = append(problems, fmt.Sprintf("%s routes to unknown target %q", r.From, r.To))
	}

	if len(problems) > 0 {
		return nil, &BuildError{Problems: problems}
	}

	log := o.opts.logger.With().Str("component", "orchestrator").Logger()
	if unreachable := routes.Unreachable(); len(unreachable) > 0 {
		log.Warn().Strs("components", unreachable).Msg("components unreachable from entry point")
	}
	if !routes.CanReach(string(Terminate)) {
		log.Warn().Msg("no route from the entry point reaches termination; runs will end at the step limit")
	}

	components := make(map[Target]Component, len(o.components))
	for name, c := range o.components {
		components[name] = c
	}

	return &Graph{
		entry:      o.entry,
		order:      slices.Clone(o.order),
		components: components,
		declared:   declared,
		roster:     slices.Clone(o.teams),
		policy:     *o.opts.policyConfig,
		log:        log,
		metrics:    o.opts.metrics,
		store:      o.opts.checkpointer,
		newID:      o.opts.newID,
	}, nil
}
