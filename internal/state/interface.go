package state

import (
	"context"
	"io"
	"time"

	"github.com/ShayCichocki/rise/internal/orchestrator"
)

// ThreadStore handles thread listing and cleanup.
type ThreadStore interface {
	ListThreads(ctx context.Context, limit int) ([]ThreadSummary, error)
	DeleteThread(ctx context.Context, threadID string) error
	PurgeOldThreads(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RunStore handles run history.
type RunStore interface {
	RecordRun(ctx context.Context, r RunRecord) error
	ListRuns(ctx context.Context, threadID string) ([]RunRecord, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store is everything the CLI needs from thread persistence. It composes
// the orchestrator's Checkpointer with listing and run history.
type Store interface {
	io.Closer
	Migrator
	orchestrator.Checkpointer
	ThreadStore
	RunStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store                     = (*DB)(nil)
	_ orchestrator.Checkpointer = (*DB)(nil)
	_ ThreadStore               = (*DB)(nil)
	_ RunStore                  = (*DB)(nil)
)
