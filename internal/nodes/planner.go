package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/pkg/models"
)

// planResponse is the JSON structure returned by the model for a plan.
type planResponse struct {
	Goal       string `json:"goal"`
	Complexity string `json:"complexity"`
	Steps      []struct {
		ID          string   `json:"id"`
		Description string   `json:"description"`
		Team        string   `json:"team"`
		Tools       []string `json:"tools"`
		DependsOn   []string `json:"depends_on"`
	} `json:"steps"`
}

// Planner turns the request into a structured plan. Every plan it produces
// is appended as a new version; earlier plans stay in the run state.
type Planner struct {
	model  llm.LLM
	roster models.Roster
	next   orchestrator.Target
	newID  func() string
	log    zerolog.Logger
}

// NewPlanner creates a planner for roster. It routes to the supervisor
// unless WithNext says otherwise (the validator, when one is wired).
// A nil model plans by keyword matching; see MatchPlan.
func NewPlanner(model llm.LLM, roster models.Roster, opts ...Option) *Planner {
	o := buildOptions(PlannerName, orchestrator.Supervisor, opts)
	return &Planner{model: model, roster: roster, next: o.next, newID: o.newID, log: o.log}
}

// Routes implements orchestrator.Component.
func (p *Planner) Routes() []orchestrator.Target {
	return []orchestrator.Target{p.next}
}

// Execute implements orchestrator.Component. A model failure produces an
// empty plan carrying the failure as its reason, which validation rejects.
func (p *Planner) Execute(ctx context.Context, state models.RunState) (orchestrator.Directive, error) {
	request, ok := requestOf(state)
	if !ok {
		return orchestrator.Directive{}, ErrNoRequest
	}

	var (
		plan models.Plan
		err  error
	)
	if p.model == nil {
		plan = MatchPlan(request, p.roster, p.newID)
	} else {
		var resp string
		resp, err = p.model.Generate(ctx, fmt.Sprintf(plannerPrompt, p.roster.Describe(), request), state.Messages)
		if err == nil {
			plan, err = parsePlan(resp, request, p.newID)
		}
	}
	if err != nil {
		p.log.Warn().Err(err).Msg("planning failed")
		plan = models.Plan{ID: p.newID(), Goal: request, Reason: fmt.Sprintf("planning failed: %v", err)}
	}
	plan.CreatedBy = string(PlannerName)
	if c := models.PlanComplexity(state.Coordination[MetaComplexity]); plan.Complexity == "" && c.Rank() > 0 {
		plan.Complexity = c
	}

	p.log.Info().Str("plan_id", plan.ID).Int("steps", len(plan.Steps)).Msg("plan created")
	return orchestrator.Goto(p.next, models.StateUpdate{
		Plan:     &plan,
		Progress: pendingProgress(plan),
		Messages: []models.Turn{models.AssistantTurn(string(PlannerName), DescribePlan(plan))},
	}), nil
}

// parsePlan decodes a model response into a plan with pending steps.
// Steps without an ID are numbered in order.
func parsePlan(resp, request string, newID func() string) (models.Plan, error) {
	var pr planResponse
	if err := llm.ExtractJSON(resp, &pr); err != nil {
		return models.Plan{}, fmt.Errorf("parse plan: %w", err)
	}

	plan := models.Plan{
		ID:         newID(),
		Goal:       strings.TrimSpace(pr.Goal),
		Complexity: models.PlanComplexity(strings.ToLower(pr.Complexity)),
		CreatedAt:  time.Now(),
	}
	if plan.Goal == "" {
		plan.Goal = request
	}
	if plan.Complexity.Rank() == 0 {
		plan.Complexity = ""
	}

	for i, s := range pr.Steps {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		plan.Steps = append(plan.Steps, models.PlanStep{
			ID:          id,
			Description: strings.TrimSpace(s.Description),
			Team:        strings.TrimSpace(s.Team),
			Tools:       s.Tools,
			DependsOn:   s.DependsOn,
			Status:      models.StepPending,
		})
	}
	return plan, nil
}

func pendingProgress(plan models.Plan) map[string]models.StepStatus {
	if len(plan.Steps) == 0 {
		return nil
	}
	progress := make(map[string]models.StepStatus, len(plan.Steps))
	for _, s := range plan.Steps {
		progress[s.ID] = models.StepPending
	}
	return progress
}

// DescribePlan renders a plan as a short numbered list.
func DescribePlan(plan models.Plan) string {
	if len(plan.Steps) == 0 {
		if plan.Reason != "" {
			return "No plan steps: " + plan.Reason
		}
		return "No plan steps."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for: %s\n", plan.Goal)
	for i, s := range plan.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, s.Team, s.Description)
		if len(s.Tools) > 0 {
			fmt.Fprintf(&b, " (tools: %s)", strings.Join(s.Tools, ", "))
		}
		if len(s.DependsOn) > 0 {
			fmt.Fprintf(&b, " after %s", strings.Join(s.DependsOn, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
