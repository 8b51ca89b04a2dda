package team

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/rise/internal/rl"
	"github.com/ShayCichocki/rise/pkg/models"
)

// Registry holds the teams of a process. Create one at startup and pass it
// to whatever needs lookup; there is no package-level registry.
// It is safe for concurrent use.
type Registry struct {
	// order keeps registration order for rosters.
	order []string
	// teams maps team names to teams.
	teams map[string]*Team
	// mu protects all fields.
	mu sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{teams: make(map[string]*Team)}
}

// Register adds a team. Names must be unique.
func (r *Registry) Register(t *Team) error {
	if t == nil {
		return errors.New("register nil team")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.teams[t.Name()]; dup {
		return fmt.Errorf("team %q already registered", t.Name())
	}
	r.teams[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get retrieves a team by name.
// Returns nil if the team is not registered.
func (r *Registry) Get(name string) *Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teams[name]
}

// Unregister removes a team.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[name]; !ok {
		return
	}
	delete(r.teams, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// All returns the teams in registration order.
func (r *Registry) All() []*Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Team, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.teams[name])
	}
	return out
}

// Roster describes the registered teams in registration order.
func (r *Registry) Roster() models.Roster {
	teams := r.All()
	roster := make(models.Roster, len(teams))
	for i, t := range teams {
		roster[i] = t.Info()
	}
	return roster
}

// Count returns the number of registered teams.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.teams)
}

// Managers returns the distinct learning managers attached to teams.
// Teams sharing a manager contribute it once.
func (r *Registry) Managers() []*rl.Manager {
	seen := make(map[*rl.Manager]bool)
	var out []*rl.Manager
	for _, t := range r.All() {
		m := t.Manager()
		if m == nil || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Close flushes and closes every learning manager. Flush failures are
// logged by the managers; close errors are joined.
func (r *Registry) Close() error {
	var errs []error
	for _, m := range r.Managers() {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close manager %s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}
