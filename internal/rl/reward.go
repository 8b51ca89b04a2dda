package rl

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ShayCichocki/rise/internal/llm"
)

// Outcome describes one team execution for reward purposes.
type Outcome struct {
	// Request is the text the team was asked to handle.
	Request string
	// Response is the team's final answer.
	Response string
	// ToolsCalled lists the tools invoked, in call order.
	ToolsCalled []string
	// ExpectedTools lists the tools the plan step asked for, if any.
	ExpectedTools []string
	// ToolErrors holds captured tool failure messages.
	ToolErrors []string
	// ToolsExpected marks requests that should have used a tool.
	ToolsExpected bool
	// Feedback is an external verdict such as "positive" or "thumbs_down".
	Feedback string
	// Rating is an optional numeric verdict on a 1..5 scale.
	Rating *float64
}

// Succeeded reports whether at least one tool ran and none failed.
func (o Outcome) Succeeded() bool {
	return len(o.ToolsCalled) > 0 && len(o.ToolErrors) == 0
}

// RewardCalculator turns an outcome into a reward in [-1, 1].
type RewardCalculator interface {
	Compute(ctx context.Context, o Outcome) float64
}

// Clamp limits a reward to [-1, 1]. NaN maps to 0.
func Clamp(r float64) float64 {
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// HeuristicReward scores outcomes from success, failure and empty results.
type HeuristicReward struct {
	SuccessReward float64
	FailureReward float64
	// EmptyPenalty applies when no tool ran although one was expected,
	// or when the response is blank.
	EmptyPenalty float64
}

// NewHeuristicReward returns the calculator with default weights.
func NewHeuristicReward() HeuristicReward {
	return HeuristicReward{SuccessReward: 1.0, FailureReward: -0.5, EmptyPenalty: -0.3}
}

// Compute implements RewardCalculator.
func (h HeuristicReward) Compute(_ context.Context, o Outcome) float64 {
	switch {
	case len(o.ToolErrors) > 0:
		return Clamp(h.FailureReward)
	case len(o.ToolsCalled) == 0 && o.ToolsExpected:
		return Clamp(h.FailureReward + h.EmptyPenalty)
	case strings.TrimSpace(o.Response) == "":
		return Clamp(h.EmptyPenalty)
	default:
		return Clamp(h.SuccessReward)
	}
}

// UserFeedbackReward maps an external verdict to a fixed scale.
type UserFeedbackReward struct {
	Positive float64
	Negative float64
	Neutral  float64
}

// NewUserFeedbackReward returns +1 / -1 / 0 weights.
func NewUserFeedbackReward() UserFeedbackReward {
	return UserFeedbackReward{Positive: 1.0, Negative: -1.0, Neutral: 0}
}

var (
	positiveFeedback = []string{"positive", "good", "thumbs_up", "up", "yes", "correct", "+1"}
	negativeFeedback = []string{"negative", "bad", "thumbs_down", "down", "no", "wrong", "-1"}
)

// Compute implements RewardCalculator. A numeric rating on 1..5 wins over
// a textual verdict and maps linearly onto [-1, 1].
func (u UserFeedbackReward) Compute(_ context.Context, o Outcome) float64 {
	if o.Rating != nil {
		return Clamp((*o.Rating - 3) / 2)
	}
	verdict := strings.ToLower(strings.TrimSpace(o.Feedback))
	switch {
	case slices.Contains(positiveFeedback, verdict):
		return Clamp(u.Positive)
	case slices.Contains(negativeFeedback, verdict):
		return Clamp(u.Negative)
	default:
		return Clamp(u.Neutral)
	}
}

// LLMJudgedReward asks a model to score the outcome.
type LLMJudgedReward struct {
	Judge llm.LLM
	// Fallback scores the outcome when the judge fails or answers without a number.
	Fallback RewardCalculator
}

// NewLLMJudgedReward returns a judge-backed calculator falling back to the heuristic.
func NewLLMJudgedReward(judge llm.LLM) LLMJudgedReward {
	return LLMJudgedReward{Judge: judge, Fallback: NewHeuristicReward()}
}

var scorePattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)

const judgePrompt = `Rate how well the assistant handled the request on a scale from -1 (useless or wrong) to 1 (fully correct).
Reply with the number only.

Request: %s
Tools used: %s
Tool errors: %s
Response: %s`

// Compute implements RewardCalculator. The judge's first number is clipped
// to [-1, 1].
func (j LLMJudgedReward) Compute(ctx context.Context, o Outcome) float64 {
	if j.Judge == nil {
		return j.fallback(ctx, o)
	}

	prompt := fmt.Sprintf(judgePrompt, o.Request, joinOrNone(o.ToolsCalled), joinOrNone(o.ToolErrors), o.Response)
	answer, err := j.Judge.Generate(ctx, prompt, nil)
	if err != nil {
		return j.fallback(ctx, o)
	}

	score, ok := parseScore(answer)
	if !ok {
		return j.fallback(ctx, o)
	}
	return Clamp(score)
}

func (j LLMJudgedReward) fallback(ctx context.Context, o Outcome) float64 {
	if j.Fallback == nil {
		return 0
	}
	return j.Fallback.Compute(ctx, o)
}

func parseScore(answer string) (float64, bool) {
	match := scorePattern.FindString(answer)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// ToolUsageReward compares the tools that ran with the tools a plan step expected.
type ToolUsageReward struct {
	CorrectTool  float64
	WrongTool    float64
	PartialMatch float64
	NoTool       float64
}

// NewToolUsageReward returns the calculator with default weights.
func NewToolUsageReward() ToolUsageReward {
	return ToolUsageReward{CorrectTool: 1.0, WrongTool: -0.8, PartialMatch: 0.3, NoTool: -0.5}
}

// Compute implements RewardCalculator. Outcomes without expectations score
// as correct when every call succeeded.
func (t ToolUsageReward) Compute(_ context.Context, o Outcome) float64 {
	if len(o.ToolsCalled) == 0 {
		if len(o.ExpectedTools) == 0 && !o.ToolsExpected {
			return 0
		}
		return Clamp(t.NoTool)
	}

	if len(o.ExpectedTools) == 0 {
		if len(o.ToolErrors) > 0 {
			return Clamp(t.WrongTool)
		}
		return Clamp(t.CorrectTool)
	}

	matched := 0
	for _, tool := range o.ExpectedTools {
		if slices.Contains(o.ToolsCalled, tool) {
			matched++
		}
	}

	switch {
	case matched == 0:
		return Clamp(t.WrongTool)
	case matched == len(o.ExpectedTools) && len(o.ToolErrors) == 0:
		return Clamp(t.CorrectTool)
	default:
		return Clamp(t.PartialMatch)
	}
}

// RewardByName returns a calculator for a configured variant name:
// heuristic, user_feedback, llm_judged or tool_usage.
func RewardByName(name string, judge llm.LLM) (RewardCalculator, error) {
	switch name {
	case "", "heuristic":
		return NewHeuristicReward(), nil
	case "user_feedback":
		return NewUserFeedbackReward(), nil
	case "llm_judged":
		if judge == nil {
			return nil, fmt.Errorf("llm_judged reward requires a judge model")
		}
		return NewLLMJudgedReward(judge), nil
	case "tool_usage":
		return NewToolUsageReward(), nil
	default:
		return nil, fmt.Errorf("unknown reward calculator %q", name)
	}
}
