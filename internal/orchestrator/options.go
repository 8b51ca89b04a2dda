package orchestrator

import (
	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/metrics"
	"github.com/ShayCichocki/rise/internal/orchestrator/policy"
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	policyConfig *policy.Config
	stepLimit    int
	logger       zerolog.Logger
	metrics      *metrics.Recorder
	checkpointer Checkpointer
	newID        func() string
}

// WithPolicy sets the policy configuration.
func WithPolicy(p *policy.Config) Option {
	return func(o *orchestratorOptions) { o.policyConfig = p }
}

// WithStepLimit overrides the policy's step limit, whatever the order of
// options. The policy passed to WithPolicy is not modified.
func WithStepLimit(n int) Option {
	return func(o *orchestratorOptions) { o.stepLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithMetrics records steps and run outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *orchestratorOptions) { o.metrics = m }
}

// WithCheckpointer persists thread state between invocations.
func WithCheckpointer(c Checkpointer) Option {
	return func(o *orchestratorOptions) { o.checkpointer = c }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *orchestratorOptions) { o.newID = fn }
}
