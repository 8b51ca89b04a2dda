// Package graph provides the directed-graph checks used when plans are
// validated and when orchestration graphs are compiled.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/rise/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found between plan steps.
var ErrCycleDetected = errors.New("circular dependency detected")

// MissingDependency is a DependsOn entry that names no step in the plan.
type MissingDependency struct {
	StepID    string
	DependsOn string
}

// MissingDependencyError lists every unresolved DependsOn entry.
type MissingDependencyError struct {
	Missing []MissingDependency
}

func (e *MissingDependencyError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		parts[i] = fmt.Sprintf("step %s depends on unknown step %s", m.StepID, m.DependsOn)
	}
	return strings.Join(parts, "; ")
}

// DependencyGraph represents the dependencies between the steps of a plan.
// Steps are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// order keeps plan order so results are deterministic.
	order []string
	// nodes maps step ID to the step itself.
	nodes map[string]models.PlanStep
	// edges maps step ID to IDs of steps it depends on.
	edges map[string][]string
	// missing records dependencies on unknown steps seen by Build.
	missing []MissingDependency
	// completed tracks which steps have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...any)
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]models.PlanStep),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...any) {}, // no-op by default
	}
}

// FromPlan builds a graph from the plan's steps. Build errors are kept on
// the graph; inspect them with Missing and HasCycle.
func FromPlan(plan *models.Plan) *DependencyGraph {
	g := New()
	if plan != nil {
		_ = g.Build(plan.Steps)
	}
	return g
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from plan steps. Dependencies on unknown steps
// are skipped and reported as a *MissingDependencyError; otherwise a cycle
// yields ErrCycleDetected. Duplicate step IDs keep the first occurrence.
func (g *DependencyGraph) Build(steps []models.PlanStep) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d steps", len(steps))

	// First pass: register all steps as nodes.
	for _, step := range steps {
		if _, dup := g.nodes[step.ID]; dup {
			g.debugLog("[graph.Build] duplicate step id=%s ignored", step.ID)
			continue
		}
		g.order = append(g.order, step.ID)
		g.nodes[step.ID] = step
		g.edges[step.ID] = nil
		if step.Status == models.StepCompleted {
			g.completed[step.ID] = true
		}
	}

	// Second pass: build edges from DependsOn fields.
	for _, id := range g.order {
		for _, depID := range g.nodes[id].DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				g.missing = append(g.missing, MissingDependency{StepID: id, DependsOn: depID})
				continue
			}
			g.edges[id] = append(g.edges[id], depID)
		}
	}

	g.debugLog("[graph.Build] edges: %v missing: %v", g.edges, g.missing)

	if len(g.missing) > 0 {
		return &MissingDependencyError{Missing: append([]MissingDependency(nil), g.missing...)}
	}
	if _, found := g.findCycleLocked(); found {
		return ErrCycleDetected
	}
	return nil
}

// Missing returns the dependencies on unknown steps found by Build.
func (g *DependencyGraph) Missing() []MissingDependency {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]MissingDependency(nil), g.missing...)
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, found := g.findCycleLocked()
	return found
}

// Cycle returns the step IDs forming the first cycle found, in dependency
// order with the first ID repeated at the end, or nil.
func (g *DependencyGraph) Cycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cycle, _ := g.findCycleLocked()
	return cycle
}

// findCycleLocked uses depth-first search with coloring to detect back edges.
// It assumes the lock is held.
func (g *DependencyGraph) findCycleLocked() ([]string, bool) {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at depID.
				for i, s := range stack {
					if s == depID {
						cycle = append(append([]string(nil), stack[i:]...), depID)
						break
					}
				}
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return cycle, true
		}
	}
	return nil, false
}

// TopologicalSort returns step IDs in an order where all dependencies come
// before the steps that depend on them. Independent steps keep plan order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, found := g.findCycleLocked(); found {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ready returns steps whose dependencies are all complete and which are not
// complete or failed themselves, in plan order.
func (g *DependencyGraph) Ready() []models.PlanStep {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []models.PlanStep
	for _, id := range g.order {
		step := g.nodes[id]
		if g.completed[id] || step.Status == models.StepFailed {
			continue
		}

		blocked := false
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, step)
		}
	}

	g.debugLog("[graph.Ready] %d ready steps", len(ready))
	return ready
}

// ApplyProgress marks steps complete or failed from a progress map.
func (g *DependencyGraph) ApplyProgress(progress map[string]models.StepStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, status := range progress {
		step, ok := g.nodes[id]
		if !ok {
			continue
		}
		switch status {
		case models.StepCompleted:
			g.completed[id] = true
		case models.StepFailed:
			step.Status = models.StepFailed
			g.nodes[id] = step
		}
	}
}

// MarkComplete marks a step as completed. This affects subsequent calls to Ready.
func (g *DependencyGraph) MarkComplete(stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[stepID] = true
}

// Step returns the step for a given ID.
func (g *DependencyGraph) Step(stepID string) (models.PlanStep, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	step, ok := g.nodes[stepID]
	return step, ok
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of steps that the given step depends on.
func (g *DependencyGraph) Dependencies(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[stepID]...)
}

// Dependents returns the IDs of steps that depend on the given step, in plan order.
func (g *DependencyGraph) Dependents(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}
