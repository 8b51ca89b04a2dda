package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/pkg/models"
)

// Generator writes the final answer from the team results and ends the run.
type Generator struct {
	model llm.LLM
	log   zerolog.Logger
}

// NewGenerator creates a generator. With a nil model, or when the model
// fails, the answer is assembled from the team turns directly.
func NewGenerator(model llm.LLM, opts ...Option) *Generator {
	o := buildOptions(GeneratorName, orchestrator.Terminate, opts)
	return &Generator{model: model, log: o.log}
}

// Routes implements orchestrator.Component. The generator only terminates.
func (g *Generator) Routes() []orchestrator.Target {
	return nil
}

// Execute implements orchestrator.Component.
func (g *Generator) Execute(ctx context.Context, state models.RunState) (orchestrator.Directive, error) {
	request, _ := requestOf(state)
	results := TeamTurns(state)

	answer := ""
	if g.model != nil {
		plan := "(none)"
		if p := state.LatestPlan(); p != nil {
			plan = DescribePlan(*p)
		}
		resp, err := g.model.Generate(ctx, fmt.Sprintf(generatorPrompt, request, plan, llm.FormatHistory(results)), state.Messages)
		switch {
		case err != nil:
			g.log.Warn().Err(err).Msg("response generation failed, falling back to team output")
		case strings.TrimSpace(resp) == "":
			g.log.Warn().Msg("empty response from model, falling back to team output")
		default:
			answer = strings.TrimSpace(resp)
		}
	}
	if answer == "" {
		answer = fallbackAnswer(results)
	}

	return orchestrator.End(models.StateUpdate{
		Messages: []models.Turn{models.AssistantTurn(string(GeneratorName), answer)},
	}), nil
}

// TeamTurns returns the assistant turns produced by teams in the current
// run, oldest first. Turns from earlier runs of the thread are excluded.
func TeamTurns(state models.RunState) []models.Turn {
	start := 0
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == models.RoleUser {
			start = i + 1
			break
		}
	}
	var out []models.Turn
	for _, t := range state.Messages[start:] {
		if t.Role == models.RoleAssistant && !IsNode(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

func fallbackAnswer(results []models.Turn) string {
	if len(results) == 0 {
		return "I was not able to complete this request."
	}
	var b strings.Builder
	for _, t := range results {
		content := strings.TrimSpace(t.Content)
		if t.Failed() && content == "" {
			content = "failed: " + t.Error
		}
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(content)
	}
	if b.Len() == 0 {
		return "I was not able to complete this request."
	}
	return b.String()
}
