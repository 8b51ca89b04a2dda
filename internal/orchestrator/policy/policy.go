// Package policy defines configurable policy parameters for graph execution.
// This centralizes the limits and buffer sizes that bound a run, enabling
// configuration and testing.
package policy

// Config contains all configurable policy parameters for a compiled graph.
type Config struct {
	// Limits bound a single run.
	Limits LimitsPolicy

	// Stream controls snapshot delivery.
	Stream StreamPolicy

	// Checkpoint controls thread persistence.
	Checkpoint CheckpointPolicy
}

// LimitsPolicy bounds a single invocation.
type LimitsPolicy struct {
	// StepLimit is the maximum number of components visited in one run.
	StepLimit int

	// ReplanLimit is the maximum number of replans in one run.
	ReplanLimit int
}

// StreamPolicy controls streaming invocations.
type StreamPolicy struct {
	// BufferSize is the snapshot channel capacity. Producers block when it is
	// full, so a slow consumer slows the run rather than losing snapshots.
	BufferSize int
}

// CheckpointPolicy controls when thread state is saved.
type CheckpointPolicy struct {
	// EveryStep saves after each component, not only at the end of a run.
	EveryStep bool
}

// Default returns the default policy configuration.
func Default() *Config {
	return &Config{
		Limits: LimitsPolicy{
			StepLimit:   50,
			ReplanLimit: 2,
		},
		Stream: StreamPolicy{
			BufferSize: 16,
		},
		Checkpoint: CheckpointPolicy{
			EveryStep: true,
		},
	}
}

// Validate checks that policy values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Limits.StepLimit < 1 {
		c.Limits.StepLimit = 50
	}
	if c.Limits.ReplanLimit < 0 {
		c.Limits.ReplanLimit = 2
	}
	if c.Stream.BufferSize < 0 {
		c.Stream.BufferSize = 16
	}
	return nil
}
