package nodes

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/orchestrator"
)

// Registered names of the standard nodes.
const (
	CoordinatorName orchestrator.Target = "coordinator"
	PlannerName     orchestrator.Target = "planner"
	ValidatorName   orchestrator.Target = "plan_validator"
	ReplannerName   orchestrator.Target = "adaptive_replanner"
	GeneratorName   orchestrator.Target = "response_generator"
)

// IsNode reports whether name is one of the standard node names.
func IsNode(name string) bool {
	switch orchestrator.Target(name) {
	case CoordinatorName, PlannerName, ValidatorName, ReplannerName, GeneratorName, orchestrator.Supervisor:
		return true
	default:
		return false
	}
}

// Option configures a node.
type Option func(*nodeOptions)

type nodeOptions struct {
	log   zerolog.Logger
	next  orchestrator.Target
	newID func() string
}

func buildOptions(name, defaultNext orchestrator.Target, opts []Option) nodeOptions {
	o := nodeOptions{
		log:   zerolog.Nop(),
		next:  defaultNext,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With().Str("component", string(name)).Logger()
	return o
}

// WithLogger sets the node's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *nodeOptions) { o.log = l }
}

// WithNext overrides where the coordinator or planner routes on success.
func WithNext(next orchestrator.Target) Option {
	return func(o *nodeOptions) { o.next = next }
}

// WithIDGenerator overrides plan ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *nodeOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}
