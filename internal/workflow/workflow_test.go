package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/rise/internal/config"
	"github.com/ShayCichocki/rise/internal/nodes"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/internal/team"
	"github.com/ShayCichocki/rise/internal/toolkit"
	"github.com/ShayCichocki/rise/pkg/models"
)

func registry(t *testing.T) *team.Registry {
	t.Helper()
	math, err := team.New("math_team").WithDescription("arithmetic").WithTools(toolkit.MathTools()...).Build()
	require.NoError(t, err)
	report, err := team.New("report_team").WithDescription("formatting").WithTools(toolkit.ReportTools()...).Build()
	require.NoError(t, err)

	r := team.NewRegistry()
	require.NoError(t, r.Register(math))
	require.NoError(t, r.Register(report))
	return r
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestBuildHierarchical_RequiresTeams(t *testing.T) {
	_, err := BuildHierarchical(Options{})
	assert.ErrorIs(t, err, ErrNoTeams)

	_, err = BuildHierarchical(Options{Teams: team.NewRegistry()})
	assert.ErrorIs(t, err, ErrNoTeams)
}

func TestBuildHierarchical_Topology(t *testing.T) {
	g, err := BuildHierarchical(Options{Teams: registry(t), Graph: config.GraphConfig{StepLimit: 20}})
	require.NoError(t, err)

	assert.Equal(t, nodes.CoordinatorName, g.Entry())
	assert.Equal(t, 20, g.StepLimit())
	assert.Equal(t, []orchestrator.Target{"math_team", "report_team"}, g.Roster())
	assert.ElementsMatch(t, []orchestrator.Target{
		nodes.CoordinatorName, nodes.PlannerName, nodes.GeneratorName, nodes.ValidatorName,
		nodes.ReplannerName, orchestrator.Supervisor, "math_team", "report_team",
	}, g.Components())

	assert.Equal(t, []orchestrator.Target{nodes.ValidatorName}, g.Routes(nodes.PlannerName))
	assert.Equal(t, []orchestrator.Target{orchestrator.Supervisor}, g.Routes(nodes.ReplannerName))
	assert.NotContains(t, g.Routes(orchestrator.Supervisor), nodes.ReplannerName)
}

func TestBuildHierarchical_SkipValidation(t *testing.T) {
	g, err := BuildHierarchical(Options{Teams: registry(t), SkipValidation: true})
	require.NoError(t, err)
	assert.NotContains(t, g.Components(), nodes.ValidatorName)
	assert.NotContains(t, g.Components(), nodes.ReplannerName)
	assert.Equal(t, []orchestrator.Target{orchestrator.Supervisor}, g.Routes(nodes.PlannerName))

	g, err = BuildHierarchical(Options{
		Teams:          registry(t),
		SkipValidation: true,
		Graph:          config.GraphConfig{ReplanOnToolFailure: true},
	})
	require.NoError(t, err)
	assert.Contains(t, g.Components(), nodes.ReplannerName)
	assert.Contains(t, g.Routes(orchestrator.Supervisor), nodes.ReplannerName)
}

func TestBuildHierarchical_TeamNameCollision(t *testing.T) {
	r := registry(t)
	planner, err := team.New(string(nodes.PlannerName)).Build()
	require.NoError(t, err)
	require.NoError(t, r.Register(planner))

	_, err = BuildHierarchical(Options{Teams: r})
	assert.ErrorContains(t, err, "collides")
}

func TestBuildHierarchical_RunsWithoutModel(t *testing.T) {
	store := orchestrator.NewMemoryCheckpointer()
	g, err := BuildHierarchical(Options{
		Teams:        registry(t),
		Graph:        config.GraphConfig{AutoFix: true},
		Checkpointer: store,
		NewID:        sequentialIDs(),
	})
	require.NoError(t, err)

	stream := g.Stream(context.Background(), "thread-1", models.UserTurn("Calculate the sum of 10, 20, 30"))
	var visited []orchestrator.Target
	for snap := range stream.Snapshots() {
		visited = append(visited, snap.Component)
	}
	final, err := stream.Wait()
	require.NoError(t, err)

	assert.Equal(t, []orchestrator.Target{
		nodes.CoordinatorName, nodes.PlannerName, nodes.ValidatorName, orchestrator.Supervisor,
		"math_team", orchestrator.Supervisor, nodes.GeneratorName,
	}, visited)

	last, ok := final.LastTurn()
	require.True(t, ok)
	assert.Equal(t, string(nodes.GeneratorName), last.Name)
	assert.Equal(t, "The sum of 10, 20, 30 is 60", last.Content)

	plan := final.LatestPlan()
	require.NotNil(t, plan)
	assert.Equal(t, []string{toolkit.CalculateSum}, plan.Steps[0].Tools)
	assert.Equal(t, models.StepCompleted, final.Progress[plan.Steps[0].ID])
	assert.Equal(t, []string{"thread-1"}, store.Threads())
}
