package rl

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"go.yaml.in/yaml/v3"
)

// Statistics summarises a manager's learning state.
type Statistics struct {
	Manager          string  `yaml:"manager" json:"manager"`
	TotalStates      int     `yaml:"total_states" json:"total_states"`
	TotalTools       int     `yaml:"total_tools" json:"total_tools"`
	NonZeroQValues   int     `yaml:"non_zero_q_values" json:"non_zero_q_values"`
	ExplorationRate  float64 `yaml:"exploration_rate" json:"exploration_rate"`
	LearningRate     float64 `yaml:"learning_rate" json:"learning_rate"`
	DiscountFactor   float64 `yaml:"discount_factor" json:"discount_factor"`
	UseEmbeddings    bool    `yaml:"use_embeddings" json:"use_embeddings"`
	CachedEmbeddings int     `yaml:"cached_embeddings" json:"cached_embeddings"`
}

// Statistics returns a summary of the table. TotalTools counts the union of
// the configured vocabulary and every tool with a Q-value.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	tools := make(map[string]struct{})
	for _, t := range m.cfg.Tools {
		tools[t] = struct{}{}
	}
	for _, t := range m.table.Tools() {
		tools[t] = struct{}{}
	}

	return Statistics{
		Manager:          m.cfg.Name,
		TotalStates:      m.table.Len(),
		TotalTools:       len(tools),
		NonZeroQValues:   m.table.NonZero(),
		ExplorationRate:  m.exploration,
		LearningRate:     m.cfg.LearningRate,
		DiscountFactor:   m.cfg.DiscountFactor,
		UseEmbeddings:    m.fingerprint.UsesEmbeddings(),
		CachedEmbeddings: m.fingerprint.CachedEmbeddings(),
	}
}

// StateSummary describes one learned state.
type StateSummary struct {
	StateKey  string             `yaml:"state_key"`
	BestTool  string             `yaml:"best_tool"`
	BestValue float64            `yaml:"best_value"`
	QValues   map[string]float64 `yaml:"q_values"`
}

// States lists every learned state with its best tool, sorted by key.
func (m *Manager) States() []StateSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StateSummary, 0, m.table.Len())
	for _, key := range m.table.States() {
		best, value, _ := m.table.BestTool(key)
		out = append(out, StateSummary{
			StateKey:  key,
			BestTool:  best,
			BestValue: value,
			QValues:   m.table.Row(key),
		})
	}
	return out
}

// readableReport is the document written by ExportReadable.
type readableReport struct {
	GeneratedAt string         `yaml:"generated_at"`
	Statistics  Statistics     `yaml:"statistics"`
	States      []StateSummary `yaml:"states"`
}

// ExportStatus reports the outcome of ExportReadable.
type ExportStatus struct {
	OK      bool
	Path    string
	States  int
	Entries int
	Err     error
}

func (s ExportStatus) String() string {
	if !s.OK {
		return fmt.Sprintf("export to %s failed: %v", s.Path, s.Err)
	}
	return fmt.Sprintf("exported %d states (%d entries) to %s", s.States, s.Entries, s.Path)
}

// ExportReadable writes the table as YAML for people to read. It never
// panics or returns an error; failures are logged and reported in the status.
func (m *Manager) ExportReadable(path string) ExportStatus {
	states := m.States()
	report := readableReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Statistics:  m.Statistics(),
		States:      states,
	}

	entries := 0
	for _, s := range states {
		entries += len(s.QValues)
	}
	status := ExportStatus{Path: path, States: len(states), Entries: entries}

	data, err := yaml.Marshal(report)
	if err != nil {
		return m.exportFailed(status, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return m.exportFailed(status, err)
	}

	status.OK = true
	m.log.Info().Str("path", path).Int("states", status.States).Msg("exported q-table")
	return status
}

func (m *Manager) exportFailed(status ExportStatus, err error) ExportStatus {
	status.Err = &PersistenceError{Op: "export", Path: status.Path, Err: err}
	m.metrics.IncPersistenceError(m.cfg.Name, "export")
	m.log.Error().Err(status.Err).Msg("q-table export failed")
	return status
}

// TopTools returns the n highest-valued tools for a state key, best first.
func TopTools(row map[string]float64, n int) []string {
	tools := slices.Sorted(maps.Keys(row))
	slices.SortStableFunc(tools, func(a, b string) int {
		switch {
		case row[a] > row[b]:
			return -1
		case row[a] < row[b]:
			return 1
		default:
			return 0
		}
	})
	if n > 0 && n < len(tools) {
		tools = tools[:n]
	}
	return tools
}
