// Package supervisor decides which team acts next.
package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/graph"
	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/metrics"
	"github.com/ShayCichocki/rise/internal/nodes"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/pkg/models"
)

// Finish is the decision that ends team dispatch.
const Finish = "FINISH"

// Decision outcomes, as recorded in metrics.
const (
	OutcomeTeam        = "team"
	OutcomeFinish      = "finish"
	OutcomeFallback    = "fallback"
	OutcomeReplan      = "replan"
	OutcomePlanPolicy  = "plan"
	OutcomeModelFailed = "model_error"
)

const supervisorPrompt = `You are a supervisor managing a conversation between these teams:
%s
Given the conversation so far, choose who should act next. Each team reports its
result back to you. When the user's request has been fully handled, choose %s.
%s
Return ONLY a JSON object with this exact structure (no other text):
{"next": "team name or %s"}`

// Supervisor routes between the teams of a fixed roster. It keeps no memory
// between calls; everything it knows is in the run state.
type Supervisor struct {
	model     llm.LLM
	roster    models.Roster
	finish    orchestrator.Target
	replanner orchestrator.Target
	log       zerolog.Logger
	metrics   *metrics.Recorder
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithFinishTarget sets where FINISH and failed decisions route. The
// default is the response generator.
func WithFinishTarget(t orchestrator.Target) Option {
	return func(s *Supervisor) { s.finish = t }
}

// WithReplanOnToolFailure routes to replanner whenever the latest turn
// carries a tool failure.
func WithReplanOnToolFailure(replanner orchestrator.Target) Option {
	return func(s *Supervisor) { s.replanner = replanner }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithMetrics records routing decisions.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// New creates a supervisor for roster. With a nil model it follows the
// latest plan: the first team with a ready step acts next.
func New(model llm.LLM, roster models.Roster, opts ...Option) *Supervisor {
	s := &Supervisor{
		model:  model,
		roster: roster,
		finish: nodes.GeneratorName,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "supervisor").Logger()
	return s
}

// Routes implements orchestrator.Component.
func (s *Supervisor) Routes() []orchestrator.Target {
	routes := make([]orchestrator.Target, 0, len(s.roster)+2)
	for _, name := range s.roster.Names() {
		routes = append(routes, orchestrator.Target(name))
	}
	routes = append(routes, s.finish)
	if s.replanner != "" {
		routes = append(routes, s.replanner)
	}
	return routes
}

// Execute implements orchestrator.Component. A malformed decision is
// re-prompted once and then routed to the finish target; it never fails the run.
func (s *Supervisor) Execute(ctx context.Context, state models.RunState) (orchestrator.Directive, error) {
	if s.replanner != "" {
		if turn, ok := state.LastTurn(); ok && turn.Failed() && s.roster.Has(turn.Name) {
			s.log.Info().Str("team", turn.Name).Msg("tool failure, replanning")
			return s.route(s.replanner, OutcomeReplan), nil
		}
	}

	if s.model == nil {
		return s.followPlan(state), nil
	}

	feedback := ""
	for attempt := 1; attempt <= 2; attempt++ {
		prompt := fmt.Sprintf(supervisorPrompt, s.roster.Describe(), Finish, feedback, Finish)
		resp, err := s.model.Generate(ctx, prompt, state.Messages)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return orchestrator.Directive{}, ctxErr
			}
			s.log.Warn().Err(err).Msg("decision failed, finishing")
			return s.route(s.finish, OutcomeModelFailed), nil
		}

		choice := ParseDecision(resp)
		if strings.EqualFold(choice, Finish) {
			return s.route(s.finish, OutcomeFinish), nil
		}
		if name, ok := s.roster.Resolve(choice); ok {
			return s.route(orchestrator.Target(name), OutcomeTeam), nil
		}

		s.log.Warn().Str("choice", choice).Int("attempt", attempt).Msg("decision not in roster")
		feedback = fmt.Sprintf("\nYour previous answer %q is not a valid choice. Choose exactly one of: %s, %s.\n",
			choice, strings.Join(s.roster.Names(), ", "), Finish)
	}

	return s.route(s.finish, OutcomeFallback), nil
}

// followPlan picks the first team whose plan step is ready, or finishes.
func (s *Supervisor) followPlan(state models.RunState) orchestrator.Directive {
	plan := state.LatestPlan()
	if plan == nil {
		return s.route(s.finish, OutcomePlanPolicy)
	}

	g := graph.FromPlan(plan)
	g.ApplyProgress(state.Progress)
	for _, step := range g.Ready() {
		if name, ok := s.roster.Resolve(step.Team); ok {
			return s.route(orchestrator.Target(name), OutcomePlanPolicy)
		}
	}
	return s.route(s.finish, OutcomePlanPolicy)
}

func (s *Supervisor) route(target orchestrator.Target, outcome string) orchestrator.Directive {
	s.metrics.ObserveDecision(string(target), outcome)
	s.log.Debug().Str("next", string(target)).Str("outcome", outcome).Msg("routing decision")
	return orchestrator.Goto(target, models.StateUpdate{})
}

// ParseDecision extracts the chosen name from a model answer: a JSON
// object with a "next" field, or else the first non-empty line.
func ParseDecision(resp string) string {
	var decision struct {
		Next string `json:"next"`
	}
	if err := llm.ExtractJSON(resp, &decision); err == nil && decision.Next != "" {
		return strings.TrimSpace(decision.Next)
	}
	for _, line := range strings.Split(resp, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "\"'`.")
		if line != "" {
			return line
		}
	}
	return ""
}
