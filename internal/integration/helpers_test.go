//go:build integration

package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/internal/rl"
	"github.com/ShayCichocki/rise/internal/team"
	"github.com/ShayCichocki/rise/internal/toolkit"
	"github.com/ShayCichocki/rise/pkg/models"
)

// Prompt openings used to tell the graph's model calls apart.
const (
	coordinatorCall = "You are the coordinator"
	plannerCall     = "Break this user request"
	replannerCall   = "A previous plan for this request"
	supervisorCall  = "You are a supervisor"
	generatorCall   = "Write the final answer"
)

// scriptedModel answers each kind of call from its own queue. An exhausted
// queue repeats its last answer.
type scriptedModel struct {
	mu      sync.Mutex
	scripts map[string][]string
	calls   map[string]int
}

func newScriptedModel(scripts map[string][]string) *scriptedModel {
	return &scriptedModel{scripts: scripts, calls: make(map[string]int)}
}

func (m *scriptedModel) Generate(_ context.Context, prompt string, _ []models.Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for kind, answers := range m.scripts {
		if !strings.HasPrefix(prompt, kind) {
			continue
		}
		n := m.calls[kind]
		m.calls[kind]++
		if n >= len(answers) {
			n = len(answers) - 1
		}
		return answers[n], nil
	}
	return "", fmt.Errorf("unscripted prompt: %.60q", prompt)
}

func (m *scriptedModel) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

func planJSON(team string, tools ...string) string {
	quoted := make([]string, len(tools))
	for i, tool := range tools {
		quoted[i] = fmt.Sprintf("%q", tool)
	}
	return fmt.Sprintf(`{"goal": "sum the numbers", "complexity": "simple", "steps": [
		{"id": "s1", "description": "Calculate the sum of 10, 20, 30", "team": %q, "tools": [%s]}
	]}`, team, strings.Join(quoted, ", "))
}

// newManager returns a manager that always exploits, so rankings follow Q-values.
func newManager(t *testing.T, name string) *rl.Manager {
	t.Helper()
	cfg := rl.DefaultConfig(name)
	cfg.ExplorationRate = 0
	m, err := rl.NewManager(cfg, rl.WithSeed(1))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

// roster builds math_team, with its tools listed in reverse so an untrained
// manager would not pick calculate_sum, and report_team.
func roster(t *testing.T, mathManager *rl.Manager) *team.Registry {
	t.Helper()

	tools := toolkit.MathTools()
	reversed := make([]team.Tool, len(tools))
	for i, tool := range tools {
		reversed[len(tools)-1-i] = tool
	}

	math, err := team.New("math_team").
		WithDescription("arithmetic on lists of numbers").
		WithTools(reversed...).
		WithRL(mathManager, rl.NewToolUsageReward()).
		Build()
	if err != nil {
		t.Fatalf("build math_team: %v", err)
	}
	report, err := team.New("report_team").
		WithDescription("formats results").
		WithTools(toolkit.ReportTools()...).
		WithRL(newManager(t, "report_team"), nil).
		Build()
	if err != nil {
		t.Fatalf("build report_team: %v", err)
	}

	r := team.NewRegistry()
	for _, tm := range []*team.Team{math, report} {
		if err := r.Register(tm); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return r
}

// collect drains a stream and returns the visited components and the routing decisions.
func collect(stream *orchestrator.Stream) ([]orchestrator.Target, []orchestrator.Snapshot) {
	var (
		visited []orchestrator.Target
		snaps   []orchestrator.Snapshot
	)
	for snap := range stream.Snapshots() {
		visited = append(visited, snap.Component)
		snaps = append(snaps, snap)
	}
	return visited, snaps
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func equalTargets(a, b []orchestrator.Target) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
