package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/pkg/models"
)

// Replanner regenerates the plan after a validation failure or a tool
// failure reported by a team. It checks each new plan itself and always
// hands a usable plan to the supervisor; it never routes back to the
// validator. Once the run has used its replan budget it ends the run with
// orchestrator.ErrReplanLimitExceeded.
type Replanner struct {
	model   llm.LLM
	checker Checker
	limit   int
	newID   func() string
	log     zerolog.Logger
}

// NewReplanner creates a replanner that allows limit replans per run.
func NewReplanner(model llm.LLM, checker Checker, limit int, opts ...Option) *Replanner {
	o := buildOptions(ReplannerName, orchestrator.Supervisor, opts)
	if checker.NewID == nil {
		checker.NewID = o.newID
	}
	if limit < 0 {
		limit = 0
	}
	return &Replanner{model: model, checker: checker, limit: limit, newID: o.newID, log: o.log}
}

// Limit returns the number of replans allowed per run.
func (r *Replanner) Limit() int {
	return r.limit
}

// Routes implements orchestrator.Component.
func (r *Replanner) Routes() []orchestrator.Target {
	return []orchestrator.Target{orchestrator.Supervisor}
}

// Execute implements orchestrator.Component.
func (r *Replanner) Execute(ctx context.Context, state models.RunState) (orchestrator.Directive, error) {
	request, ok := requestOf(state)
	if !ok {
		return orchestrator.Directive{}, ErrNoRequest
	}
	trigger, reason := Diagnose(state)

	var (
		update   models.StateUpdate
		previous = state.LatestPlan()
	)
	for attempt := state.Replans + 1; attempt <= r.limit; attempt++ {
		strategy := models.StrategyRevise
		if attempt > 1 {
			strategy = models.StrategySimplify
		}

		plan := r.generate(ctx, state, request, previous, reason, strategy)
		report, fixed := r.checker.Check(&plan)
		if fixed != nil {
			plan = *fixed
			plan.Reason = reason
		}
		plan.CreatedBy = string(ReplannerName)

		update.ReplanEvents = append(update.ReplanEvents, models.ReplanEvent{
			Attempt:  attempt,
			Trigger:  trigger,
			Strategy: strategy,
			Reason:   reason,
			PlanID:   plan.ID,
			Valid:    report.Valid,
			At:       time.Now(),
		})
		update.Plan = &plan
		update.ValidationReport = &report

		r.log.Info().
			Int("attempt", attempt).
			Str("trigger", string(trigger)).
			Str("strategy", string(strategy)).
			Bool("valid", report.Valid).
			Msg("replanned")

		if report.Valid {
			update.Progress = pendingProgress(plan)
			update.Messages = []models.Turn{models.AssistantTurn(string(ReplannerName),
				fmt.Sprintf("Revised plan after %s.\n%s", trigger, DescribePlan(plan)))}
			return orchestrator.Goto(orchestrator.Supervisor, update), nil
		}

		previous = &plan
		reason = DescribeIssues(&report)
	}

	replans := state.Replans + len(update.ReplanEvents)
	r.log.Warn().Int("replans", replans).Int("limit", r.limit).Msg("replan limit reached")
	update.Messages = []models.Turn{models.AssistantTurn(string(ReplannerName),
		fmt.Sprintf("Unable to produce a usable plan after %d replans. Last problem:\n%s", replans, reason))}
	return orchestrator.Fail(
		fmt.Errorf("%w: %d of %d replans used", orchestrator.ErrReplanLimitExceeded, replans, r.limit),
		update,
	), nil
}

// generate asks the model for a new plan. Failures yield an empty plan,
// which the checker rejects.
func (r *Replanner) generate(ctx context.Context, state models.RunState, request string, previous *models.Plan, reason string, strategy models.ReplanStrategy) models.Plan {
	if r.model == nil {
		plan := MatchPlan(request, r.checker.Roster, r.newID)
		plan.Reason = reason
		return plan
	}

	prev := "(none)"
	if previous != nil {
		prev = DescribePlan(*previous)
	}
	guidance := reviseGuidance
	if strategy == models.StrategySimplify {
		guidance = simplifyGuidance
	}

	prompt := fmt.Sprintf(replannerPrompt, r.checker.Roster.Describe(), request, prev, reason, guidance)
	resp, err := r.model.Generate(ctx, prompt, state.Messages)
	if err == nil {
		var plan models.Plan
		if plan, err = parsePlan(resp, request, r.newID); err == nil {
			plan.Reason = reason
			return plan
		}
	}
	r.log.Warn().Err(err).Msg("replanning failed")
	return models.Plan{ID: r.newID(), Goal: request, Reason: fmt.Sprintf("replanning failed: %v", err)}
}

// Diagnose says why a replan is needed: an invalid latest plan, or else
// the tool failure carried by the latest turn.
func Diagnose(state models.RunState) (models.ReplanTrigger, string) {
	report := state.ValidationReport
	if plan := state.LatestPlan(); report != nil && !report.Valid && plan != nil && report.PlanID == plan.ID {
		return models.TriggerValidationFailure, DescribeIssues(report)
	}
	if report != nil && !report.Valid && state.LatestPlan() == nil {
		return models.TriggerValidationFailure, DescribeIssues(report)
	}
	if turn, ok := state.LastTurn(); ok && turn.Failed() {
		return models.TriggerToolFailure, fmt.Sprintf("team %s failed: %s", turn.Name, turn.Error)
	}
	return models.TriggerValidationFailure, "the current plan was rejected"
}
