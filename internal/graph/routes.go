package graph

import (
	"slices"
	"sort"
)

// Route is one declared edge of an orchestration graph.
type Route struct {
	From string
	To   string
}

// RouteGraph holds the declared routes between named components.
type RouteGraph struct {
	entry string
	order []string
	edges map[string][]string
}

// NewRouteGraph creates an empty route graph with the given entry point.
func NewRouteGraph(entry string) *RouteGraph {
	return &RouteGraph{entry: entry, edges: make(map[string][]string)}
}

// AddNode registers a component and the targets it may route to.
// Registering the same name twice merges the target lists.
func (r *RouteGraph) AddNode(name string, targets ...string) {
	if _, ok := r.edges[name]; !ok {
		r.order = append(r.order, name)
		r.edges[name] = nil
	}
	for _, t := range targets {
		if !slices.Contains(r.edges[name], t) {
			r.edges[name] = append(r.edges[name], t)
		}
	}
}

// Has reports whether name is a registered component.
func (r *RouteGraph) Has(name string) bool {
	_, ok := r.edges[name]
	return ok
}

// Targets returns the declared targets of a component.
func (r *RouteGraph) Targets(name string) []string {
	return append([]string(nil), r.edges[name]...)
}

// Unresolved returns routes whose target is neither a registered component
// nor one of the given terminal names, in registration order.
func (r *RouteGraph) Unresolved(terminals ...string) []Route {
	var out []Route
	for _, from := range r.order {
		for _, to := range r.edges[from] {
			if r.Has(to) || slices.Contains(terminals, to) {
				continue
			}
			out = append(out, Route{From: from, To: to})
		}
	}
	return out
}

// Unreachable returns registered components that no route path from the
// entry point reaches, sorted by name.
func (r *RouteGraph) Unreachable() []string {
	if !r.Has(r.entry) {
		return nil
	}

	seen := map[string]bool{r.entry: true}
	queue := []string{r.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range r.edges[cur] {
			if seen[next] || !r.Has(next) {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}

	var out []string
	for _, name := range r.order {
		if !seen[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// CanReach reports whether target is reachable from the entry point.
// Terminal names count as reachable when any visited component routes to them.
func (r *RouteGraph) CanReach(target string) bool {
	if !r.Has(r.entry) {
		return false
	}
	seen := map[string]bool{r.entry: true}
	queue := []string{r.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		for _, next := range r.edges[cur] {
			if next == target {
				return true
			}
			if seen[next] || !r.Has(next) {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return false
}
