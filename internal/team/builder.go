package team

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/metrics"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/internal/rl"
)

// Builder assembles a Team step by step:
//
//	t, err := team.New("math_team").
//		WithLLM(model).
//		WithTools(toolkit.MathTools()...).
//		WithRL(manager, rl.NewHeuristicReward()).
//		Build()
type Builder struct {
	t    Team
	errs []error
}

// New starts building a team registered under name.
func New(name string) *Builder {
	return &Builder{t: Team{
		name:          name,
		maxIterations: DefaultMaxIterations,
		log:           zerolog.Nop(),
	}}
}

// WithLLM sets the model that drives the tool loop. Without one the team
// calls its top ranked tool directly.
func (b *Builder) WithLLM(model llm.LLM) *Builder {
	b.t.model = model
	return b
}

// WithTools adds tools in order.
func (b *Builder) WithTools(tools ...Tool) *Builder {
	b.t.tools = append(b.t.tools, tools...)
	return b
}

// WithPrompt sets the team's instructions.
func (b *Builder) WithPrompt(prompt string) *Builder {
	b.t.prompt = prompt
	return b
}

// WithDescription sets the roster description shown to the planner and supervisor.
func (b *Builder) WithDescription(description string) *Builder {
	b.t.description = description
	return b
}

// WithRL attaches a learning manager. A nil calculator means heuristic rewards.
// The same manager may be given to several teams so they learn together.
func (b *Builder) WithRL(manager *rl.Manager, reward rl.RewardCalculator) *Builder {
	b.t.manager = manager
	b.t.reward = reward
	return b
}

// WithMaxIterations bounds the model/tool exchanges per run.
func (b *Builder) WithMaxIterations(n int) *Builder {
	if n < 1 {
		b.errs = append(b.errs, fmt.Errorf("max iterations must be positive, got %d", n))
		return b
	}
	b.t.maxIterations = n
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.t.log = l
	return b
}

// WithMetrics records tool calls.
func (b *Builder) WithMetrics(m *metrics.Recorder) *Builder {
	b.t.metrics = m
	return b
}

// Build validates the configuration and returns the team.
func (b *Builder) Build() (*Team, error) {
	errs := append([]error(nil), b.errs...)

	name := strings.TrimSpace(b.t.name)
	switch {
	case name == "":
		errs = append(errs, errors.New("team name is required"))
	case orchestrator.Target(name) == orchestrator.Supervisor || orchestrator.Target(name) == orchestrator.Terminate:
		errs = append(errs, fmt.Errorf("team name %q is reserved", name))
	}

	seen := make(map[string]bool, len(b.t.tools))
	for _, tool := range b.t.tools {
		if tool == nil {
			errs = append(errs, errors.New("nil tool"))
			continue
		}
		if tool.Name() == "" {
			errs = append(errs, errors.New("tool with empty name"))
			continue
		}
		if seen[tool.Name()] {
			errs = append(errs, fmt.Errorf("duplicate tool %q", tool.Name()))
		}
		seen[tool.Name()] = true
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("build team %q: %w", b.t.name, errors.Join(errs...))
	}

	t := b.t
	t.name = name
	t.tools = append([]Tool(nil), b.t.tools...)
	if t.manager != nil && t.reward == nil {
		t.reward = rl.NewHeuristicReward()
	}
	t.log = t.log.With().Str("component", "team").Str("team", name).Logger()
	return &t, nil
}
