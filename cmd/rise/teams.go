package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/config"
	"github.com/ShayCichocki/rise/internal/embed"
	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/metrics"
	"github.com/ShayCichocki/rise/internal/rl"
	"github.com/ShayCichocki/rise/internal/team"
	"github.com/ShayCichocki/rise/internal/toolkit"
)

// teamSpec describes one built-in team.
type teamSpec struct {
	name        string
	description string
	prompt      string
	tools       []team.Tool
}

// builtinTeams returns the teams every rise run starts with.
func builtinTeams() []teamSpec {
	return []teamSpec{
		{
			name:        "math_team",
			description: "Performs arithmetic: sums, products, averages and powers of numbers.",
			prompt:      "You are the math team. Use your tools to compute exact results; never do arithmetic yourself.",
			tools:       toolkit.MathTools(),
		},
		{
			name:        "report_team",
			description: "Formats content as a titled report or a bullet list.",
			prompt:      "You are the report team. Format the content you are given with your tools.",
			tools:       toolkit.ReportTools(),
		},
	}
}

// qtablePath returns where a team's Q-table lives. The sqlite store keeps
// every team in one database; the file store uses one JSON file per team.
func qtablePath(cfg *config.Config, teamName string) string {
	if cfg.RL.Store == "sqlite" {
		return filepath.Join(cfg.RL.QTableDir, "qtables.db")
	}
	return filepath.Join(cfg.RL.QTableDir, teamName+".json")
}

// managerOptions collects the construction options shared by every manager.
type managerOptions struct {
	cfg      *config.Config
	embedder rl.Embedder
	log      zerolog.Logger
	metrics  *metrics.Recorder
}

func newManagerOptions(cfg *config.Config, log zerolog.Logger, m *metrics.Recorder) (managerOptions, error) {
	o := managerOptions{cfg: cfg, log: log, metrics: m}
	if !cfg.RL.UseEmbeddings {
		return o, nil
	}
	e, err := embed.New(cfg.Embeddings)
	if err != nil {
		return o, fmt.Errorf("create embedder: %w", err)
	}
	if e == nil {
		log.Warn().Msg("rl.use_embeddings is set but no embeddings provider is configured, using exact state keys")
		return o, nil
	}
	o.embedder = e
	return o, nil
}

// openManager loads the named team's learning manager from its store.
func (o managerOptions) openManager(teamName string, tools []string) (*rl.Manager, error) {
	store, err := rl.OpenStore(qtablePath(o.cfg, teamName), teamName)
	if err != nil {
		return nil, fmt.Errorf("open q-table store for %s: %w", teamName, err)
	}

	rlCfg := rl.ConfigFromSettings(teamName, o.cfg.RL)
	rlCfg.Tools = tools

	opts := []rl.Option{
		rl.WithStore(store),
		rl.WithLogger(o.log),
		rl.WithMetrics(o.metrics),
	}
	if o.embedder != nil {
		opts = append(opts, rl.WithEmbedder(o.embedder))
	}
	m, err := rl.NewManager(rlCfg, opts...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create manager for %s: %w", teamName, err)
	}
	return m, nil
}

// buildTeams creates the built-in teams, each with its own learning
// manager. A nil model leaves the teams in direct mode, calling their top
// ranked tool with the request.
func buildTeams(cfg *config.Config, model llm.LLM, reward rl.RewardCalculator, log zerolog.Logger, m *metrics.Recorder) (*team.Registry, error) {
	mo, err := newManagerOptions(cfg, log, m)
	if err != nil {
		return nil, err
	}

	registry := team.NewRegistry()
	for _, spec := range builtinTeams() {
		names := make([]string, len(spec.tools))
		for i, tool := range spec.tools {
			names[i] = tool.Name()
		}

		manager, err := mo.openManager(spec.name, names)
		if err != nil {
			registry.Close()
			return nil, err
		}

		t, err := team.New(spec.name).
			WithLLM(model).
			WithTools(spec.tools...).
			WithPrompt(spec.prompt).
			WithDescription(spec.description).
			WithRL(manager, reward).
			WithMaxIterations(cfg.Graph.TeamMaxIterations).
			WithLogger(log).
			WithMetrics(m).
			Build()
		if err == nil {
			err = registry.Register(t)
		}
		if err != nil {
			manager.Close()
			registry.Close()
			return nil, fmt.Errorf("build %s: %w", spec.name, err)
		}
	}
	return registry, nil
}

// openManagers loads the managers of the built-in teams without building
// the teams, for the qtable commands. A non-empty only restricts the result
// to that team.
func openManagers(cfg *config.Config, only string, log zerolog.Logger) ([]*rl.Manager, error) {
	mo, err := newManagerOptions(cfg, log, nil)
	if err != nil {
		return nil, err
	}

	var managers []*rl.Manager
	closeAll := func() {
		for _, m := range managers {
			m.Close()
		}
	}
	for _, spec := range builtinTeams() {
		if only != "" && spec.name != only {
			continue
		}
		names := make([]string, len(spec.tools))
		for i, tool := range spec.tools {
			names[i] = tool.Name()
		}
		m, err := mo.openManager(spec.name, names)
		if err != nil {
			closeAll()
			return nil, err
		}
		managers = append(managers, m)
	}
	if only != "" && len(managers) == 0 {
		return nil, fmt.Errorf("unknown team %q", only)
	}
	return managers, nil
}
