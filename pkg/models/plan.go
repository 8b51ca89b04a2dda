package models

import "time"

// StepStatus represents the execution state of a plan step.
type StepStatus string

const (
	// StepPending indicates the step has not started.
	StepPending StepStatus = "pending"
	// StepInProgress indicates a team is working on the step.
	StepInProgress StepStatus = "in_progress"
	// StepCompleted indicates the step finished successfully.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step's team reported a tool failure.
	StepFailed StepStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepInProgress, StepCompleted, StepFailed:
		return true
	default:
		return false
	}
}

// PlanComplexity is the planner's estimate of how involved a request is.
type PlanComplexity string

const (
	ComplexitySimple      PlanComplexity = "simple"
	ComplexityModerate    PlanComplexity = "moderate"
	ComplexityComplex     PlanComplexity = "complex"
	ComplexityVeryComplex PlanComplexity = "very_complex"
)

// Rank orders complexities from simple (1) to very complex (4).
// Unknown values rank 0.
func (c PlanComplexity) Rank() int {
	switch c {
	case ComplexitySimple:
		return 1
	case ComplexityModerate:
		return 2
	case ComplexityComplex:
		return 3
	case ComplexityVeryComplex:
		return 4
	default:
		return 0
	}
}

// PlanStep is one unit of work assigned to a team.
type PlanStep struct {
	// ID identifies the step within its plan.
	ID string `json:"id"`
	// Description says what the team should do.
	Description string `json:"description"`
	// Team is the roster name of the team that should execute the step.
	Team string `json:"team"`
	// Tools lists the tools the planner expects the team to use.
	Tools []string `json:"tools,omitempty"`
	// DependsOn lists step IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the step's state when the plan was produced.
	Status StepStatus `json:"status,omitempty"`
}

// Plan is a structured plan produced by the planner or replanner.
// Plans are never edited after they are appended to a RunState; corrections
// produce a new Plan with a higher Version.
type Plan struct {
	// ID is unique per plan object.
	ID string `json:"id"`
	// Version increases by one for every plan appended in a run.
	Version int `json:"version"`
	// Goal restates the user's request.
	Goal string `json:"goal"`
	// Complexity is the planner's estimate.
	Complexity PlanComplexity `json:"complexity,omitempty"`
	// Steps are the ordered units of work.
	Steps []PlanStep `json:"steps"`
	// CreatedBy names the node that produced the plan.
	CreatedBy string `json:"created_by"`
	// Reason explains why this version exists (replan reason, auto-fix summary).
	Reason string `json:"reason,omitempty"`
	// CreatedAt is when the plan was produced.
	CreatedAt time.Time `json:"created_at"`
}

// Step returns the step with the given ID, or nil.
func (p *Plan) Step(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepsFor returns the steps assigned to the named team, in plan order.
func (p *Plan) StepsFor(team string) []PlanStep {
	var steps []PlanStep
	for _, s := range p.Steps {
		if s.Team == team {
			steps = append(steps, s)
		}
	}
	return steps
}

// Teams returns the distinct team names referenced by the plan, in order of first use.
func (p *Plan) Teams() []string {
	seen := make(map[string]bool)
	var teams []string
	for _, s := range p.Steps {
		if s.Team == "" || seen[s.Team] {
			continue
		}
		seen[s.Team] = true
		teams = append(teams, s.Team)
	}
	return teams
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	steps := make([]PlanStep, len(p.Steps))
	for i, s := range p.Steps {
		s.Tools = append([]string(nil), s.Tools...)
		s.DependsOn = append([]string(nil), s.DependsOn...)
		steps[i] = s
	}
	p.Steps = steps
	return p
}
