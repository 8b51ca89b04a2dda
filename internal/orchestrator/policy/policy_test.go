package policy

import "testing"

func TestDefault(t *testing.T) {
	c := Default()
	if c.Limits.StepLimit != 50 {
		t.Errorf("StepLimit = %d, want 50", c.Limits.StepLimit)
	}
	if c.Limits.ReplanLimit != 2 {
		t.Errorf("ReplanLimit = %d, want 2", c.Limits.ReplanLimit)
	}
	if !c.Checkpoint.EveryStep {
		t.Error("EveryStep = false, want true")
	}
}

func TestValidate_ClampsOutOfRange(t *testing.T) {
	c := &Config{
		Limits: LimitsPolicy{StepLimit: 0, ReplanLimit: -1},
		Stream: StreamPolicy{BufferSize: -5},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.Limits.StepLimit != 50 || c.Limits.ReplanLimit != 2 || c.Stream.BufferSize != 16 {
		t.Errorf("Validate() = %+v, want defaults restored", c)
	}

	// Zero replans is a legal configuration.
	c = &Config{Limits: LimitsPolicy{StepLimit: 5, ReplanLimit: 0}}
	_ = c.Validate()
	if c.Limits.ReplanLimit != 0 || c.Limits.StepLimit != 5 {
		t.Errorf("Validate() changed valid values: %+v", c.Limits)
	}
}
