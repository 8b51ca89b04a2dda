package graph

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/rise/pkg/models"
)

func steps(defs ...[]string) []models.PlanStep {
	out := make([]models.PlanStep, len(defs))
	for i, d := range defs {
		out[i] = models.PlanStep{ID: d[0], Team: "math_team", DependsOn: d[1:]}
	}
	return out
}

func TestBuild_Valid(t *testing.T) {
	g := New()
	if err := g.Build(steps([]string{"1"}, []string{"2", "1"}, []string{"3", "1", "2"})); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("Size() = %d, want 3", g.Size())
	}
	if g.HasCycle() {
		t.Error("HasCycle() = true, want false")
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	want := []string{"1", "2", "3"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("TopologicalSort() = %v, want %v", order, want)
		}
	}

	if deps := g.Dependents("1"); len(deps) != 2 {
		t.Errorf("Dependents(1) = %v, want [2 3]", deps)
	}
}

func TestBuild_MissingDependency(t *testing.T) {
	g := New()
	err := g.Build(steps([]string{"1", "0"}, []string{"2", "1", "9"}))

	var missing *MissingDependencyError
	if !errors.As(err, &missing) {
		t.Fatalf("Build() error = %v, want *MissingDependencyError", err)
	}
	if len(missing.Missing) != 2 {
		t.Fatalf("Missing = %v, want two entries", missing.Missing)
	}
	if missing.Missing[0] != (MissingDependency{StepID: "1", DependsOn: "0"}) {
		t.Errorf("Missing[0] = %+v", missing.Missing[0])
	}
	// Known edges are still recorded.
	if deps := g.Dependencies("2"); len(deps) != 1 || deps[0] != "1" {
		t.Errorf("Dependencies(2) = %v, want [1]", deps)
	}
}

func TestBuild_Cycle(t *testing.T) {
	g := New()
	err := g.Build(steps([]string{"a", "c"}, []string{"b", "a"}, []string{"c", "b"}))
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Build() error = %v, want ErrCycleDetected", err)
	}
	cycle := g.Cycle()
	if len(cycle) != 4 || cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("Cycle() = %v, want a closed path of 3 steps", cycle)
	}
	if _, err := g.TopologicalSort(); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("TopologicalSort() error = %v, want ErrCycleDetected", err)
	}
}

func TestReady(t *testing.T) {
	g := New()
	if err := g.Build(steps([]string{"1"}, []string{"2", "1"}, []string{"3"})); err != nil {
		t.Fatal(err)
	}

	ready := g.Ready()
	if len(ready) != 2 || ready[0].ID != "1" || ready[1].ID != "3" {
		t.Fatalf("Ready() = %v, want steps 1 and 3", ready)
	}

	g.ApplyProgress(map[string]models.StepStatus{"1": models.StepCompleted, "3": models.StepFailed})
	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID != "2" {
		t.Fatalf("Ready() after progress = %v, want step 2", ready)
	}

	g.MarkComplete("2")
	if ready := g.Ready(); len(ready) != 0 {
		t.Errorf("Ready() = %v, want none", ready)
	}
}

func TestFromPlan(t *testing.T) {
	g := FromPlan(&models.Plan{Steps: steps([]string{"1"}, []string{"1"})})
	if g.Size() != 1 {
		t.Errorf("duplicate IDs should collapse, Size() = %d", g.Size())
	}
	if FromPlan(nil).Size() != 0 {
		t.Error("FromPlan(nil) should be empty")
	}
}

func TestRouteGraph(t *testing.T) {
	r := NewRouteGraph("coordinator")
	r.AddNode("coordinator", "planner")
	r.AddNode("planner", "supervisor")
	r.AddNode("supervisor", "math_team", "response_generator")
	r.AddNode("math_team", "supervisor")
	r.AddNode("response_generator", "__end__")
	r.AddNode("orphan", "supervisor")
	r.AddNode("planner", "plan_validator")

	unresolved := r.Unresolved("__end__")
	if len(unresolved) != 1 || unresolved[0] != (Route{From: "planner", To: "plan_validator"}) {
		t.Errorf("Unresolved() = %v, want planner -> plan_validator", unresolved)
	}

	unreachable := r.Unreachable()
	if len(unreachable) != 1 || unreachable[0] != "orphan" {
		t.Errorf("Unreachable() = %v, want [orphan]", unreachable)
	}

	if !r.CanReach("__end__") {
		t.Error("CanReach(__end__) = false, want true")
	}
	if r.CanReach("orphan") {
		t.Error("CanReach(orphan) = true, want false")
	}
	if got := r.Targets("planner"); len(got) != 2 {
		t.Errorf("Targets(planner) = %v, want merged targets", got)
	}
}
