package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/rise/internal/nodes"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/pkg/models"
)

var roster = models.Roster{
	{Name: "math_team", Description: "arithmetic", Tools: []string{"calculate_sum"}},
	{Name: "report_team", Description: "formatting", Tools: []string{"format_as_report"}},
}

type scripted struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	err       error
}

func (s *scripted) Generate(_ context.Context, prompt string, _ []models.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func conversation(turns ...models.Turn) models.RunState {
	all := append([]models.Turn{models.UserTurn("Calculate the sum of 10, 20, 30")}, turns...)
	return models.NewRunState("t").Apply(models.StateUpdate{Messages: all})
}

func TestSupervisor_Routes(t *testing.T) {
	s := New(nil, roster)
	assert.Equal(t, []orchestrator.Target{"math_team", "report_team", nodes.GeneratorName}, s.Routes())

	s = New(nil, roster, WithReplanOnToolFailure(nodes.ReplannerName))
	assert.Contains(t, s.Routes(), orchestrator.Target(nodes.ReplannerName))
}

func TestSupervisor_Decisions(t *testing.T) {
	tests := []struct {
		name      string
		responses []string
		want      orchestrator.Target
		prompts   int
	}{
		{"json team", []string{`{"next": "math_team"}`}, "math_team", 1},
		{"bare name", []string{"report_team"}, "report_team", 1},
		{"loose name", []string{`{"next": "Math Team"}`}, "math_team", 1},
		{"finish", []string{`{"next": "FINISH"}`}, nodes.GeneratorName, 1},
		{"finish lowercase", []string{"finish"}, nodes.GeneratorName, 1},
		{"reprompt then valid", []string{`{"next": "poetry_team"}`, `{"next": "math_team"}`}, "math_team", 2},
		{"invalid twice", []string{"poetry_team", "dance_team"}, nodes.GeneratorName, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scripted{responses: tt.responses}
			d, err := New(model, roster).Execute(context.Background(), conversation())
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Next)
			assert.True(t, d.Update.Empty())
			assert.Len(t, model.prompts, tt.prompts)
		})
	}
}

func TestSupervisor_RepromptNamesChoices(t *testing.T) {
	model := &scripted{responses: []string{"poetry_team", "math_team"}}
	_, err := New(model, roster).Execute(context.Background(), conversation())
	require.NoError(t, err)

	require.Len(t, model.prompts, 2)
	assert.NotContains(t, model.prompts[0], "not a valid choice")
	assert.Contains(t, model.prompts[1], `"poetry_team" is not a valid choice`)
	assert.Contains(t, model.prompts[1], "math_team, report_team, FINISH")
}

func TestSupervisor_ModelErrorFinishes(t *testing.T) {
	model := &scripted{err: errors.New("rate limited")}
	d, err := New(model, roster).Execute(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Target(nodes.GeneratorName), d.Next)
}

func TestSupervisor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scripted{err: context.Canceled}

	_, err := New(model, roster).Execute(ctx, conversation())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupervisor_ReplanOnToolFailure(t *testing.T) {
	failed := models.AssistantTurn("math_team", "could not average")
	failed.Error = "tool calculate_average: division by zero"
	state := conversation(failed)

	model := &scripted{responses: []string{`{"next": "FINISH"}`}}
	d, err := New(model, roster, WithReplanOnToolFailure(nodes.ReplannerName)).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Target(nodes.ReplannerName), d.Next)
	assert.Empty(t, model.prompts, "the model is not consulted")

	// Without the option the failure is left to the model.
	d, err = New(model, roster).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Target(nodes.GeneratorName), d.Next)
}

func TestSupervisor_FollowsPlanWithoutModel(t *testing.T) {
	plan := &models.Plan{ID: "p1", Goal: "sum and report", Steps: []models.PlanStep{
		{ID: "s1", Description: "sum", Team: "math_team"},
		{ID: "s2", Description: "report", Team: "report_team", DependsOn: []string{"s1"}},
	}}
	s := New(nil, roster)
	ctx := context.Background()

	state := conversation().Apply(models.StateUpdate{Plan: plan})
	d, err := s.Execute(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Target("math_team"), d.Next)

	state = state.Apply(models.StateUpdate{Progress: map[string]models.StepStatus{"s1": models.StepCompleted}})
	d, err = s.Execute(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Target("report_team"), d.Next)

	state = state.Apply(models.StateUpdate{Progress: map[string]models.StepStatus{"s2": models.StepCompleted}})
	d, err = s.Execute(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Target(nodes.GeneratorName), d.Next)
}

func TestSupervisor_PlanPolicyStopsOnFailure(t *testing.T) {
	plan := &models.Plan{ID: "p1", Steps: []models.PlanStep{
		{ID: "s1", Description: "sum", Team: "math_team"},
		{ID: "s2", Description: "report", Team: "report_team", DependsOn: []string{"s1"}},
	}}
	state := conversation().Apply(models.StateUpdate{
		Plan:     plan,
		Progress: map[string]models.StepStatus{"s1": models.StepFailed},
	})

	d, err := New(nil, roster).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Target(nodes.GeneratorName), d.Next)
}

func TestParseDecision(t *testing.T) {
	assert.Equal(t, "math_team", ParseDecision(`{"next": "math_team"}`))
	assert.Equal(t, "math_team", ParseDecision("```json\n{\"next\": \" math_team \"}\n```"))
	assert.Equal(t, "report_team", ParseDecision("\n  \"report_team\".\n"))
	assert.Equal(t, "", ParseDecision("   "))
}
