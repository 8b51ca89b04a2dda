package models

import (
	"maps"
	"time"
)

// RunState is the record threaded through one orchestration run.
// Components receive a copy and describe changes with a StateUpdate;
// only the orchestrator applies updates.
type RunState struct {
	// ThreadID keys the conversation for resumability.
	ThreadID string `json:"thread_id"`
	// RunID identifies the current invocation.
	RunID string `json:"run_id,omitempty"`
	// Messages is the ordered conversation; it only grows.
	Messages []Turn `json:"messages"`
	// Plans holds every plan produced in the run, oldest first.
	Plans []Plan `json:"plans,omitempty"`
	// ValidationReport is the latest validation result, if any.
	ValidationReport *ValidationReport `json:"validation_report,omitempty"`
	// Coordination holds metadata written by the coordinator.
	Coordination map[string]string `json:"coordination,omitempty"`
	// Progress maps plan step IDs to their execution status.
	Progress map[string]StepStatus `json:"progress,omitempty"`
	// Replans counts replanning attempts in the current run.
	Replans int `json:"replans"`
	// ReplanEvents records each replanning attempt.
	ReplanEvents []ReplanEvent `json:"replan_events,omitempty"`
	// Steps counts components visited in the current run.
	Steps int `json:"steps"`
	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRunState returns an empty state for the given thread.
func NewRunState(threadID string) RunState {
	return RunState{ThreadID: threadID, UpdatedAt: time.Now()}
}

// Clone returns a deep copy that shares no mutable data with s.
func (s RunState) Clone() RunState {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Turn, len(s.Messages))
		for i, t := range s.Messages {
			out.Messages[i] = t.clone()
		}
	}
	if s.Plans != nil {
		out.Plans = make([]Plan, len(s.Plans))
		for i, p := range s.Plans {
			out.Plans[i] = p.Clone()
		}
	}
	if s.ValidationReport != nil {
		r := s.ValidationReport.Clone()
		out.ValidationReport = &r
	}
	out.Coordination = maps.Clone(s.Coordination)
	out.Progress = maps.Clone(s.Progress)
	out.ReplanEvents = append([]ReplanEvent(nil), s.ReplanEvents...)
	return out
}

// ResetRun clears the per-run fields while keeping the conversation.
// It is used when a thread is resumed by a new invocation.
func (s RunState) ResetRun(runID string) RunState {
	out := s.Clone()
	out.RunID = runID
	out.Plans = nil
	out.ValidationReport = nil
	out.Coordination = nil
	out.Progress = nil
	out.Replans = 0
	out.ReplanEvents = nil
	out.Steps = 0
	return out
}

// LatestPlan returns the most recent plan, or nil.
func (s RunState) LatestPlan() *Plan {
	if len(s.Plans) == 0 {
		return nil
	}
	return &s.Plans[len(s.Plans)-1]
}

// LastTurn returns the most recent turn.
func (s RunState) LastTurn() (Turn, bool) {
	if len(s.Messages) == 0 {
		return Turn{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastUserTurn returns the most recent user turn.
func (s RunState) LastUserTurn() (Turn, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Turn{}, false
}

// TurnsBy returns the turns attributed to name, oldest first.
func (s RunState) TurnsBy(name string) []Turn {
	var out []Turn
	for _, t := range s.Messages {
		if t.Name == name {
			out = append(out, t)
		}
	}
	return out
}

// StateUpdate is a partial RunState returned by a component.
// Zero-valued fields leave the state untouched.
type StateUpdate struct {
	// Messages are appended in order.
	Messages []Turn `json:"messages,omitempty"`
	// Plan is appended as a new plan version.
	Plan *Plan `json:"plan,omitempty"`
	// ValidationReport replaces the current report.
	ValidationReport *ValidationReport `json:"validation_report,omitempty"`
	// Coordination entries are merged into the state's metadata.
	Coordination map[string]string `json:"coordination,omitempty"`
	// Progress entries are merged into the step progress map.
	Progress map[string]StepStatus `json:"progress,omitempty"`
	// ReplanEvents are appended; each increments the replan counter.
	ReplanEvents []ReplanEvent `json:"replan_events,omitempty"`
}

// Empty returns true if the update changes nothing.
func (u StateUpdate) Empty() bool {
	return len(u.Messages) == 0 && u.Plan == nil && u.ValidationReport == nil &&
		len(u.Coordination) == 0 && len(u.Progress) == 0 && len(u.ReplanEvents) == 0
}

// Apply returns a new state with u applied; s is not modified.
func (s RunState) Apply(u StateUpdate) RunState {
	out := s.Clone()

	for _, t := range u.Messages {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		out.Messages = append(out.Messages, t.clone())
	}

	if u.Plan != nil {
		p := u.Plan.Clone()
		if p.Version == 0 {
			p.Version = len(out.Plans) + 1
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		out.Plans = append(out.Plans, p)
	}

	if u.ValidationReport != nil {
		r := u.ValidationReport.Clone()
		out.ValidationReport = &r
	}

	if len(u.Coordination) > 0 {
		if out.Coordination == nil {
			out.Coordination = make(map[string]string, len(u.Coordination))
		}
		maps.Copy(out.Coordination, u.Coordination)
	}

	if len(u.Progress) > 0 {
		if out.Progress == nil {
			out.Progress = make(map[string]StepStatus, len(u.Progress))
		}
		maps.Copy(out.Progress, u.Progress)
	}

	for _, e := range u.ReplanEvents {
		out.ReplanEvents = append(out.ReplanEvents, e)
		out.Replans++
	}

	out.UpdatedAt = time.Now()
	return out
}
