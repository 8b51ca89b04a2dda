package rl

import (
	"maps"
	"slices"
)

// QTable maps state keys to per-tool Q-values. There is at most one value
// per (state, tool) pair; Set overwrites in place.
//
// QTable is not safe for concurrent use. The Manager serialises access.
type QTable struct {
	values map[string]map[string]float64
}

// NewQTable returns an empty table.
func NewQTable() *QTable {
	return &QTable{values: make(map[string]map[string]float64)}
}

// QTableFrom builds a table from a nested map, copying it.
func QTableFrom(values map[string]map[string]float64) *QTable {
	t := NewQTable()
	for state, row := range values {
		t.values[state] = maps.Clone(row)
	}
	return t
}

// Get returns Q[state][tool], or 0 when the pair has never been updated.
func (t *QTable) Get(state, tool string) float64 {
	return t.values[state][tool]
}

// Set writes Q[state][tool].
func (t *QTable) Set(state, tool string, value float64) {
	row, ok := t.values[state]
	if !ok {
		row = make(map[string]float64)
		t.values[state] = row
	}
	row[tool] = value
}

// Has reports whether Q[state][tool] has been set.
func (t *QTable) Has(state, tool string) bool {
	_, ok := t.values[state][tool]
	return ok
}

// MaxRow returns the largest Q-value in a state's row, or 0 for an unseen state.
func (t *QTable) MaxRow(state string) float64 {
	row := t.values[state]
	if len(row) == 0 {
		return 0
	}
	best := 0.0
	first := true
	for _, v := range row {
		if first || v > best {
			best = v
			first = false
		}
	}
	return best
}

// States returns the state keys in sorted order.
func (t *QTable) States() []string {
	return slices.Sorted(maps.Keys(t.values))
}

// Row returns a copy of one state's Q-values.
func (t *QTable) Row(state string) map[string]float64 {
	return maps.Clone(t.values[state])
}

// Tools returns every tool name that appears in any row, sorted.
func (t *QTable) Tools() []string {
	seen := make(map[string]struct{})
	for _, row := range t.values {
		for tool := range row {
			seen[tool] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// NonZero counts entries whose value is not exactly zero.
func (t *QTable) NonZero() int {
	n := 0
	for _, row := range t.values {
		for _, v := range row {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// Len returns the number of states.
func (t *QTable) Len() int {
	return len(t.values)
}

// Snapshot returns a deep copy of the table as a nested map.
func (t *QTable) Snapshot() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(t.values))
	for state, row := range t.values {
		out[state] = maps.Clone(row)
	}
	return out
}

// BestTool returns the highest-valued tool in a state's row. Ties resolve to
// the lexically smallest name so reports are stable.
func (t *QTable) BestTool(state string) (string, float64, bool) {
	row := t.values[state]
	if len(row) == 0 {
		return "", 0, false
	}
	best := ""
	bestVal := 0.0
	for _, tool := range slices.Sorted(maps.Keys(row)) {
		if best == "" || row[tool] > bestVal {
			best, bestVal = tool, row[tool]
		}
	}
	return best, bestVal, true
}
