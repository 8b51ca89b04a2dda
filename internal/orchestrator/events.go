package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/rise/pkg/models"
)

// Snapshot is the run state after one Directive has been resolved.
type Snapshot struct {
	// Seq numbers snapshots of a run from 1 in visit order.
	Seq int
	// Component is the component whose Directive was applied.
	Component Target
	// Next is where the run goes next.
	Next Target
	// State is a copy of the run state after the update.
	State models.RunState
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time
}

// Result is the outcome of an invocation.
type Result struct {
	State models.RunState
	Err   error
}

// snapshotEmitter delivers snapshots in order to a single consumer.
// Unlike a best-effort event bus it never drops a snapshot while the run's
// context is live: Emit blocks until the consumer receives it.
type snapshotEmitter struct {
	events    chan Snapshot
	cancelled atomic.Uint64
}

func newSnapshotEmitter(bufferSize int) *snapshotEmitter {
	return &snapshotEmitter{events: make(chan Snapshot, bufferSize)}
}

// Emit sends a snapshot, giving up only when ctx is done.
func (e *snapshotEmitter) Emit(ctx context.Context, s Snapshot) {
	select {
	case e.events <- s:
	case <-ctx.Done():
		e.cancelled.Add(1)
	}
}

// Events returns a read-only channel of snapshots.
func (e *snapshotEmitter) Events() <-chan Snapshot {
	return e.events
}

// Close closes the snapshot channel once the run is over.
func (e *snapshotEmitter) Close() {
	close(e.events)
}
