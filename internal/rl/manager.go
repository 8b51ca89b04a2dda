package rl

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/config"
	"github.com/ShayCichocki/rise/internal/metrics"
)

// Config holds the learning parameters of one Manager.
type Config struct {
	// Name identifies the manager in logs, metrics and shared stores.
	Name string

	// Tools is the manager's known tool vocabulary. Tools passed to Select
	// need not be listed here.
	Tools []string

	ExplorationRate float64
	LearningRate    float64
	DiscountFactor  float64

	// ExplorationDecay multiplies the exploration rate after every
	// selection. 1.0 keeps it constant.
	ExplorationDecay   float64
	MinExplorationRate float64

	SimilarityThreshold float64
	EmbeddingCacheSize  int
	TopN                int
}

// DefaultConfig returns the default learning parameters.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		ExplorationRate:     0.2,
		LearningRate:        0.1,
		DiscountFactor:      0.99,
		ExplorationDecay:    1.0,
		MinExplorationRate:  0,
		SimilarityThreshold: DefaultSimilarityThreshold,
		EmbeddingCacheSize:  DefaultEmbeddingCacheSize,
		TopN:                1,
	}
}

// ConfigFromSettings converts the rl section of the configuration file.
func ConfigFromSettings(name string, s config.RLConfig) Config {
	cfg := DefaultConfig(name)
	cfg.ExplorationRate = s.ExplorationRate
	cfg.LearningRate = s.LearningRate
	cfg.DiscountFactor = s.DiscountFactor
	cfg.ExplorationDecay = s.ExplorationDecay
	cfg.MinExplorationRate = s.MinExplorationRate
	if s.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = s.SimilarityThreshold
	}
	if s.EmbeddingCacheSize > 0 {
		cfg.EmbeddingCacheSize = s.EmbeddingCacheSize
	}
	if s.TopN > 0 {
		cfg.TopN = s.TopN
	}
	return cfg
}

func (c *Config) normalize() {
	if c.Name == "" {
		c.Name = "default"
	}
	c.ExplorationRate = clamp01(c.ExplorationRate)
	c.MinExplorationRate = clamp01(c.MinExplorationRate)
	c.DiscountFactor = clamp01(c.DiscountFactor)
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		c.LearningRate = 0.1
	}
	if c.ExplorationDecay <= 0 || c.ExplorationDecay > 1 {
		c.ExplorationDecay = 1.0
	}
	if c.TopN < 1 {
		c.TopN = 1
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	store    Store
	embedder Embedder
	seed     *int64
	logger   zerolog.Logger
	metrics  *metrics.Recorder
}

// WithStore persists the Q-table through store. The table is loaded from it
// at construction.
func WithStore(s Store) Option {
	return func(o *managerOptions) { o.store = s }
}

// WithEmbedder switches fingerprinting to embedding mode.
func WithEmbedder(e Embedder) Option {
	return func(o *managerOptions) { o.embedder = e }
}

// WithSeed fixes the exploration random source.
func WithSeed(seed int64) Option {
	return func(o *managerOptions) { o.seed = &seed }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *managerOptions) { o.logger = l }
}

// WithMetrics records selections, updates and persistence failures.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *managerOptions) { o.metrics = m }
}

// Manager owns a Q-table, an exploration policy and a fingerprinter.
type Manager struct {
	cfg         Config
	fingerprint *Fingerprinter
	store       Store
	log         zerolog.Logger
	metrics     *metrics.Recorder

	// mu guards everything below.
	mu          sync.Mutex
	table       *QTable
	exploration float64
	rng         *rand.Rand
	dirty       bool
	// version counts table changes; Save clears dirty only when it is
	// unchanged since the snapshot was taken.
	version uint64

	saveMu sync.Mutex
}

// NewManager creates a manager and loads any persisted table. A table that
// cannot be loaded is logged and replaced by an empty one.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	o := managerOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg.normalize()

	seed := time.Now().UnixNano()
	if o.seed != nil {
		seed = *o.seed
	}

	log := o.logger.With().Str("component", "rl").Str("manager", cfg.Name).Logger()

	fp := NewExactFingerprinter()
	if o.embedder != nil {
		var err error
		fp, err = NewEmbeddingFingerprinter(o.embedder, cfg.SimilarityThreshold, cfg.EmbeddingCacheSize, log)
		if err != nil {
			return nil, err
		}
	}

	m := &Manager{
		cfg:         cfg,
		fingerprint: fp,
		store:       o.store,
		log:         log,
		metrics:     o.metrics,
		table:       NewQTable(),
		exploration: cfg.ExplorationRate,
		rng:         rand.New(rand.NewSource(seed)),
	}

	if m.store != nil {
		snap, err := m.store.Load()
		if err != nil {
			m.metrics.IncPersistenceError(cfg.Name, "load")
			m.log.Warn().Err(err).Str("store", m.store.Location()).Msg("failed to load q-table, starting empty")
		} else {
			m.table = QTableFrom(snap.Values)
			fp.LoadStateVectors(snap.Vectors)
			m.log.Debug().Int("states", m.table.Len()).Str("store", m.store.Location()).Msg("loaded q-table")
		}
	}

	return m, nil
}

// Name returns the manager name.
func (m *Manager) Name() string {
	return m.cfg.Name
}

// StateKey returns the fingerprint of request.
func (m *Manager) StateKey(ctx context.Context, request string) string {
	return m.fingerprint.Key(ctx, request)
}

// Select ranks tools for request and returns at most topN of them.
// A topN below 1 uses the configured default.
//
// With probability equal to the exploration rate the ranking is a uniform
// random permutation. Otherwise tools are ordered by descending Q-value with
// ties kept in the order given, so selection is deterministic when the
// exploration rate is zero.
func (m *Manager) Select(ctx context.Context, request string, tools []string, topN int) []string {
	if len(tools) == 0 {
		return nil
	}
	if topN < 1 {
		topN = m.cfg.TopN
	}
	topN = min(topN, len(tools))

	m.mu.Lock()
	explore := m.exploration > 0 && m.rng.Float64() < m.exploration
	var perm []int
	if explore {
		perm = m.rng.Perm(len(tools))
	}
	m.decayLocked()
	m.mu.Unlock()

	m.metrics.ObserveSelection(m.cfg.Name, explore)

	if explore {
		out := make([]string, 0, topN)
		for _, i := range perm[:topN] {
			out = append(out, tools[i])
		}
		m.log.Debug().Strs("tools", out).Msg("explored tool selection")
		return out
	}

	// Fingerprinting may call the embedder, so it stays outside the lock.
	key := m.fingerprint.Key(ctx, request)

	m.mu.Lock()
	values := make(map[string]float64, len(tools))
	for _, tool := range tools {
		values[tool] = m.table.Get(key, tool)
	}
	m.mu.Unlock()

	ranked := slices.Clone(tools)
	slices.SortStableFunc(ranked, func(a, b string) int {
		switch {
		case values[a] > values[b]:
			return -1
		case values[a] < values[b]:
			return 1
		default:
			return 0
		}
	})

	out := ranked[:topN]
	m.log.Debug().Str("state_key", key).Strs("tools", out).Msg("exploited tool selection")
	return out
}

func (m *Manager) decayLocked() {
	if m.cfg.ExplorationDecay >= 1 {
		return
	}
	m.exploration = max(m.exploration*m.cfg.ExplorationDecay, m.cfg.MinExplorationRate)
}

// Update applies one Q-learning step for (request, tool) and returns the new value:
//
//	Q[s][a] += lr * (reward + gamma * max(Q[s][*]) - Q[s][a])
//
// The max ranges over the same state's row and the configured tools, counting
// an unseen tool as 0.
func (m *Manager) Update(ctx context.Context, request, tool string, reward float64) float64 {
	key := m.fingerprint.Key(ctx, request)

	m.mu.Lock()
	current := m.table.Get(key, tool)
	best := max(m.rowMaxLocked(key), current)
	next := current + m.cfg.LearningRate*(reward+m.cfg.DiscountFactor*best-current)
	m.table.Set(key, tool, next)
	m.markDirtyLocked()
	m.mu.Unlock()

	m.metrics.ObserveUpdate(m.cfg.Name, reward)
	m.log.Debug().
		Str("state_key", key).
		Str("tool", tool).
		Float64("reward", reward).
		Float64("q_old", current).
		Float64("q_new", next).
		Msg("q-value updated")
	return next
}

// rowMaxLocked returns max(Q[key][*]) over the stored row and the manager's
// tool vocabulary.
func (m *Manager) rowMaxLocked(key string) float64 {
	best := m.table.MaxRow(key)
	for _, tool := range m.cfg.Tools {
		if !m.table.Has(key, tool) {
			return max(best, 0)
		}
	}
	return best
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	m.version++
}

// QValue returns the current Q-value for (request, tool).
func (m *Manager) QValue(ctx context.Context, request, tool string) float64 {
	key := m.fingerprint.Key(ctx, request)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Get(key, tool)
}

// ExplorationRate returns the current exploration rate.
func (m *Manager) ExplorationRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exploration
}

// SetExplorationRate overrides the current exploration rate.
func (m *Manager) SetExplorationRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exploration = clamp01(rate)
}

// Snapshot returns a copy of the table and known state vectors.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	values := m.table.Snapshot()
	m.mu.Unlock()
	return Snapshot{Values: values, Vectors: m.fingerprint.StateVectors()}
}

// Reset clears every learned value and known state. The store is not
// touched until Save.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = NewQTable()
	m.fingerprint.ResetStates()
	m.markDirtyLocked()
}

// ErrNoStore is returned by Save on a manager without a store.
var ErrNoStore = errors.New("manager has no store")

// Save writes the table to the store. Failures are returned as *PersistenceError.
func (m *Manager) Save() error {
	if m.store == nil {
		return ErrNoStore
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	values := m.table.Snapshot()
	version := m.version
	m.mu.Unlock()
	snap := Snapshot{Values: values, Vectors: m.fingerprint.StateVectors()}

	if err := m.store.Save(snap); err != nil {
		m.metrics.IncPersistenceError(m.cfg.Name, "save")
		return err
	}

	m.mu.Lock()
	if m.version == version {
		m.dirty = false
	}
	m.mu.Unlock()

	m.log.Debug().Int("states", len(snap.Values)).Str("store", m.store.Location()).Msg("saved q-table")
	return nil
}

// Flush saves pending changes and logs instead of returning failures.
// It is safe to call on managers without a store.
func (m *Manager) Flush() {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	dirty := m.dirty
	m.mu.Unlock()
	if !dirty {
		return
	}
	if err := m.Save(); err != nil {
		m.log.Error().Err(err).Msg("failed to flush q-table")
	}
}

// Close flushes and releases the store.
func (m *Manager) Close() error {
	m.Flush()
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
