package nodes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/pkg/models"
)

// ErrNoRequest is returned when a run has no user turn to act on.
var ErrNoRequest = errors.New("no user request in conversation")

// Coordination metadata keys written by the coordinator.
const (
	MetaRequest    = "request"
	MetaTurns      = "turns"
	MetaComplexity = "complexity"
	MetaIntent     = "intent"
	MetaSummary    = "summary"
)

// Coordinator opens a run. It records what the latest user turn asks for
// and hands over to the planner. Its errors are fatal to the run.
type Coordinator struct {
	model llm.LLM
	next  orchestrator.Target
	log   zerolog.Logger
}

// NewCoordinator creates a coordinator. model may be nil, in which case the
// request is analyzed with local heuristics only.
func NewCoordinator(model llm.LLM, opts ...Option) *Coordinator {
	o := buildOptions(CoordinatorName, PlannerName, opts)
	return &Coordinator{model: model, next: o.next, log: o.log}
}

// Routes implements orchestrator.Component.
func (c *Coordinator) Routes() []orchestrator.Target {
	return []orchestrator.Target{c.next}
}

// Execute implements orchestrator.Component.
func (c *Coordinator) Execute(ctx context.Context, state models.RunState) (orchestrator.Directive, error) {
	turn, ok := state.LastUserTurn()
	if !ok || strings.TrimSpace(turn.Content) == "" {
		return orchestrator.Directive{}, ErrNoRequest
	}

	meta := map[string]string{
		MetaRequest:    turn.Content,
		MetaTurns:      strconv.Itoa(len(state.Messages)),
		MetaComplexity: string(EstimateComplexity(turn.Content)),
	}

	if c.model != nil {
		resp, err := c.model.Generate(ctx, fmt.Sprintf(coordinatorPrompt, turn.Content), state.Messages)
		if err != nil {
			return orchestrator.Directive{}, fmt.Errorf("analyze request: %w", err)
		}
		var analysis struct {
			Intent     string `json:"intent"`
			Complexity string `json:"complexity"`
			Summary    string `json:"summary"`
		}
		if err := llm.ExtractJSON(resp, &analysis); err != nil {
			c.log.Warn().Err(err).Msg("coordinator analysis unparseable, using heuristics")
		} else {
			if analysis.Intent != "" {
				meta[MetaIntent] = analysis.Intent
			}
			if analysis.Summary != "" {
				meta[MetaSummary] = analysis.Summary
			}
			if models.PlanComplexity(analysis.Complexity).Rank() > 0 {
				meta[MetaComplexity] = analysis.Complexity
			}
		}
	}

	c.log.Debug().Str("complexity", meta[MetaComplexity]).Msg("request coordinated")
	return orchestrator.Goto(c.next, models.StateUpdate{Coordination: meta}), nil
}

// sequenceMarkers suggest a request with several dependent parts.
var sequenceMarkers = []string{" then ", " after that", " and also ", "; ", " finally "}

// EstimateComplexity guesses a plan complexity from the request text.
func EstimateComplexity(request string) models.PlanComplexity {
	lower := " " + strings.ToLower(request) + " "
	words := len(strings.Fields(request))

	score := 0
	switch {
	case words > 80:
		score = 3
	case words > 30:
		score = 2
	case words > 12:
		score = 1
	}
	for _, marker := range sequenceMarkers {
		if strings.Contains(lower, marker) {
			score++
		}
	}

	switch {
	case score <= 0:
		return models.ComplexitySimple
	case score == 1:
		return models.ComplexityModerate
	case score == 2:
		return models.ComplexityComplex
	default:
		return models.ComplexityVeryComplex
	}
}

// requestOf returns the request recorded by the coordinator, or the latest
// user turn when the coordinator was not wired.
func requestOf(state models.RunState) (string, bool) {
	if r := state.Coordination[MetaRequest]; r != "" {
		return r, true
	}
	turn, ok := state.LastUserTurn()
	if !ok || strings.TrimSpace(turn.Content) == "" {
		return "", false
	}
	return turn.Content, true
}
