package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/ShayCichocki/rise/pkg/models"
)

// Checkpointer stores the latest RunState of each thread.
type Checkpointer interface {
	// Load returns the thread's state and whether one was found.
	Load(ctx context.Context, threadID string) (models.RunState, bool, error)
	// Save replaces the thread's state.
	Save(ctx context.Context, state models.RunState) error
}

// MemoryCheckpointer keeps thread states in memory.
type MemoryCheckpointer struct {
	mu      sync.RWMutex
	threads map[string]models.RunState
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{threads: make(map[string]models.RunState)}
}

// Load implements Checkpointer.
func (m *MemoryCheckpointer) Load(_ context.Context, threadID string) (models.RunState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.threads[threadID]
	if !ok {
		return models.RunState{}, false, nil
	}
	return s.Clone(), true, nil
}

// Save implements Checkpointer.
func (m *MemoryCheckpointer) Save(_ context.Context, state models.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[state.ThreadID] = state.Clone()
	return nil
}

// Threads returns the stored thread IDs, sorted.
func (m *MemoryCheckpointer) Threads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
