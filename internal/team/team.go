// Package team provides LLM-plus-tools workers that the supervisor
// dispatches to, optionally learning which tool to try first.
package team

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/metrics"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/internal/rl"
	"github.com/ShayCichocki/rise/pkg/models"
)

// DefaultMaxIterations bounds the model/tool exchanges of one team run.
const DefaultMaxIterations = 4

// teamPrompt is the prompt template for one step of the tool loop.
const teamPrompt = `%s

Your task:
%s

Tools, most promising first:
%s
%s
Respond with ONLY a JSON object (no other text), either
{"tool": "tool name", "input": "input for the tool"}
to call a tool, or
{"final": "your answer"}
when the task is done.`

// action is the JSON structure returned by the model in the tool loop.
type action struct {
	Tool  string `json:"tool"`
	Input string `json:"input"`
	Final string `json:"final"`
}

// Team is an LLM bound to a set of tools under a roster name. When a
// learning manager is attached, the manager ranks the tools before the
// model sees them and is updated with a reward after every run.
type Team struct {
	name          string
	description   string
	prompt        string
	model         llm.LLM
	tools         []Tool
	manager       *rl.Manager
	reward        rl.RewardCalculator
	maxIterations int
	log           zerolog.Logger
	metrics       *metrics.Recorder
}

// Name implements orchestrator.Team.
func (t *Team) Name() string { return t.name }

// Description returns the team's roster description.
func (t *Team) Description() string { return t.description }

// Manager returns the attached learning manager, or nil.
func (t *Team) Manager() *rl.Manager { return t.manager }

// ToolNames returns the tool names in registration order.
func (t *Team) ToolNames() []string {
	names := make([]string, len(t.tools))
	for i, tool := range t.tools {
		names[i] = tool.Name()
	}
	return names
}

// Info describes the team for planning and routing.
func (t *Team) Info() models.TeamInfo {
	return models.TeamInfo{Name: t.name, Description: t.description, Tools: t.ToolNames()}
}

// Routes implements orchestrator.Component. Teams always report back to the supervisor.
func (t *Team) Routes() []orchestrator.Target {
	return []orchestrator.Target{orchestrator.Supervisor}
}

func (t *Team) tool(name string) (Tool, bool) {
	for _, tool := range t.tools {
		if tool.Name() == name {
			return tool, true
		}
	}
	return nil, false
}

// RunResult is the outcome of one team run.
type RunResult struct {
	Output      string
	ToolsCalled []string
	ToolErrors  []string
	// Ranked is the tool order the model was offered.
	Ranked     []string
	Iterations int
	Reward     float64
}

// Execute implements orchestrator.Component. Tool failures are captured in
// the returned turn; Execute itself only fails when ctx is done.
func (t *Team) Execute(ctx context.Context, state models.RunState) (orchestrator.Directive, error) {
	request := ""
	if turn, ok := state.LastUserTurn(); ok {
		request = turn.Content
	}
	steps := t.pendingSteps(state)

	result, err := t.Run(ctx, request, steps, state.Messages)
	if err != nil {
		return orchestrator.Directive{}, err
	}

	turn := models.AssistantTurn(t.name, result.Output)
	turn.ToolsCalled = result.ToolsCalled
	turn.Error = strings.Join(result.ToolErrors, "; ")

	update := models.StateUpdate{Messages: []models.Turn{turn}}
	if len(steps) > 0 {
		status := models.StepCompleted
		if turn.Failed() {
			status = models.StepFailed
		}
		update.Progress = make(map[string]models.StepStatus, len(steps))
		for _, s := range steps {
			update.Progress[s.ID] = status
		}
	}
	return orchestrator.Goto(orchestrator.Supervisor, update), nil
}

// Run handles request outside a graph. steps are the plan steps assigned to
// the team, used to phrase the task and to judge tool usage.
func (t *Team) Run(ctx context.Context, request string, steps []models.PlanStep, history []models.Turn) (RunResult, error) {
	task, input := request, request
	var expected []string
	if len(steps) > 0 {
		input = steps[0].Description
		parts := make([]string, len(steps))
		for i, s := range steps {
			parts[i] = "- " + s.Description
			for _, tool := range s.Tools {
				if !slices.Contains(expected, tool) {
					expected = append(expected, tool)
				}
			}
		}
		task = strings.Join(parts, "\n")
		if request != "" {
			task = fmt.Sprintf("%s\n\n(original request: %s)", task, request)
		}
	}

	ranked := t.ToolNames()
	if t.manager != nil && len(ranked) > 0 {
		ranked = t.manager.Select(ctx, request, ranked, len(ranked))
	}
	t.log.Debug().Strs("ranked", ranked).Msg("tools ranked")

	var (
		result RunResult
		err    error
	)
	if t.model == nil {
		result, err = t.runDirect(ctx, input, ranked)
	} else {
		result, err = t.runLoop(ctx, task, ranked, history)
	}
	if err != nil {
		return result, err
	}
	result.Ranked = ranked

	if t.manager != nil {
		result.Reward = t.learn(ctx, request, expected, ranked, result)
	}

	t.log.Info().
		Strs("tools_called", result.ToolsCalled).
		Int("tool_errors", len(result.ToolErrors)).
		Int("iterations", result.Iterations).
		Msg("team finished")
	return result, nil
}

// runDirect invokes the top ranked tool with input. It is used when the
// team has no model.
func (t *Team) runDirect(ctx context.Context, input string, ranked []string) (RunResult, error) {
	var result RunResult
	if len(ranked) == 0 {
		result.Output = "No tools available to handle the request."
		return result, nil
	}
	result.Iterations = 1
	out, err := t.call(ctx, ranked[0], input, &result)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		result.Output = err.Error()
		return result, nil
	}
	result.Output = out
	return result, nil
}

// runLoop lets the model pick tools until it gives a final answer or the
// iteration budget runs out.
func (t *Team) runLoop(ctx context.Context, task string, ranked []string, history []models.Turn) (RunResult, error) {
	var (
		result       RunResult
		observations []string
		lastOutput   string
	)
	toolList := t.describeTools(ranked)

	for result.Iterations < t.maxIterations {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Iterations++

		scratch := ""
		if len(observations) > 0 {
			scratch = "\nResults so far:\n" + strings.Join(observations, "\n") + "\n"
		}
		resp, err := t.model.Generate(ctx, fmt.Sprintf(teamPrompt, t.prompt, task, toolList, scratch), history)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			t.log.Warn().Err(err).Msg("model call failed")
			result.ToolErrors = append(result.ToolErrors, fmt.Sprintf("model: %v", err))
			result.Output = fallbackOutput(lastOutput, err)
			return result, nil
		}

		var act action
		if err := llm.ExtractJSON(resp, &act); err != nil {
			// Plain text is taken as the final answer.
			result.Output = strings.TrimSpace(resp)
			return result, nil
		}
		if act.Tool == "" {
			result.Output = strings.TrimSpace(act.Final)
			if result.Output == "" {
				result.Output = lastOutput
			}
			return result, nil
		}

		out, err := t.call(ctx, act.Tool, act.Input, &result)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			observations = append(observations, fmt.Sprintf("%s(%q) failed: %v", act.Tool, act.Input, err))
			continue
		}
		lastOutput = out
		observations = append(observations, fmt.Sprintf("%s(%q) = %s", act.Tool, act.Input, out))
	}

	t.log.Warn().Int("max_iterations", t.maxIterations).Msg("iteration budget exhausted")
	result.Output = lastOutput
	if result.Output == "" {
		result.Output = "No answer within the iteration budget."
	}
	return result, nil
}

// call invokes a tool by name and records the call and any failure.
func (t *Team) call(ctx context.Context, name, input string, result *RunResult) (string, error) {
	tool, ok := t.tool(name)
	if !ok {
		err := &ToolExecutionError{Tool: name, Input: input, Err: errors.New("no such tool")}
		result.ToolErrors = append(result.ToolErrors, err.Error())
		t.metrics.ObserveToolCall(t.name, name, false)
		return "", err
	}

	result.ToolsCalled = append(result.ToolsCalled, name)
	out, err := invokeSafely(ctx, tool, input)
	t.metrics.ObserveToolCall(t.name, name, err == nil)
	if err != nil {
		t.log.Warn().Err(err).Str("tool", name).Msg("tool failed")
		result.ToolErrors = append(result.ToolErrors, err.Error())
		return "", err
	}
	return out, nil
}

// learn computes the reward for a run and updates every tool that ran.
// When no tool ran, the tool that was ranked first takes the reward.
func (t *Team) learn(ctx context.Context, request string, expected, ranked []string, result RunResult) float64 {
	reward := t.reward.Compute(ctx, rl.Outcome{
		Request:       request,
		Response:      result.Output,
		ToolsCalled:   result.ToolsCalled,
		ExpectedTools: expected,
		ToolErrors:    result.ToolErrors,
		ToolsExpected: len(t.tools) > 0,
	})

	updated := make(map[string]bool)
	for _, tool := range result.ToolsCalled {
		if updated[tool] {
			continue
		}
		updated[tool] = true
		t.manager.Update(ctx, request, tool, reward)
	}
	if len(updated) == 0 && len(ranked) > 0 {
		t.manager.Update(ctx, request, ranked[0], reward)
	}
	return reward
}

func (t *Team) describeTools(ranked []string) string {
	var b strings.Builder
	for _, name := range ranked {
		tool, ok := t.tool(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name(), tool.Description())
	}
	return b.String()
}

// pendingSteps returns the latest plan's steps for this team that have not
// completed yet.
func (t *Team) pendingSteps(state models.RunState) []models.PlanStep {
	plan := state.LatestPlan()
	if plan == nil {
		return nil
	}
	var out []models.PlanStep
	for _, s := range plan.StepsFor(t.name) {
		if state.Progress[s.ID] == models.StepCompleted {
			continue
		}
		out = append(out, s)
	}
	return out
}

func fallbackOutput(last string, err error) string {
	if last != "" {
		return last
	}
	return fmt.Sprintf("The team could not finish: %v", err)
}
