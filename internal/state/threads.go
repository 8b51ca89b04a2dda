package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/rise/pkg/models"
)

// ThreadSummary describes a stored thread without decoding its state.
type ThreadSummary struct {
	ThreadID  string
	RunID     string
	Messages  int
	Steps     int
	Replans   int
	UpdatedAt time.Time
}

// Load implements orchestrator.Checkpointer.
func (db *DB) Load(ctx context.Context, threadID string) (models.RunState, bool, error) {
	var raw string
	err := db.queryRow(ctx, "SELECT state FROM threads WHERE thread_id = ?", threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RunState{}, false, nil
	}
	if err != nil {
		return models.RunState{}, false, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	var s models.RunState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return models.RunState{}, false, fmt.Errorf("decode thread %s: %w", threadID, err)
	}
	return s, true, nil
}

// Save implements orchestrator.Checkpointer. The thread's row is replaced.
func (db *DB) Save(ctx context.Context, s models.RunState) error {
	if s.ThreadID == "" {
		return errors.New("save thread: empty thread id")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode thread %s: %w", s.ThreadID, err)
	}

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = db.exec(ctx, `
		INSERT INTO threads (thread_id, run_id, messages, steps, replans, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			run_id = excluded.run_id,
			messages = excluded.messages,
			steps = excluded.steps,
			replans = excluded.replans,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, s.ThreadID, s.RunID, len(s.Messages), s.Steps, s.Replans, string(raw), formatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("save thread %s: %w", s.ThreadID, err)
	}
	return nil
}

// Threads returns the stored thread IDs, sorted.
func (db *DB) Threads() []string {
	rows, err := db.query(context.Background(), "SELECT thread_id FROM threads ORDER BY thread_id")
	if err != nil {
		return nil
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return ids
		}
		ids = append(ids, id)
	}
	return ids
}

// ListThreads returns thread summaries, most recently updated first.
// A limit of 0 or less returns every thread.
func (db *DB) ListThreads(ctx context.Context, limit int) ([]ThreadSummary, error) {
	q := `SELECT thread_id, COALESCE(run_id, ''), messages, steps, replans, updated_at
		FROM threads ORDER BY updated_at DESC, thread_id`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []ThreadSummary
	for rows.Next() {
		var (
			t         ThreadSummary
			updatedAt string
		)
		if err := rows.Scan(&t.ThreadID, &t.RunID, &t.Messages, &t.Steps, &t.Replans, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at for %s: %w", t.ThreadID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteThread removes a thread and its run history.
// Deleting an unknown thread is not an error.
func (db *DB) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := db.exec(ctx, "DELETE FROM runs WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("delete runs of %s: %w", threadID, err)
	}
	if _, err := db.exec(ctx, "DELETE FROM threads WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// PurgeOldThreads deletes threads not updated within olderThan.
// Returns the number of threads deleted.
func (db *DB) PurgeOldThreads(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	if _, err := db.exec(ctx, `
		DELETE FROM runs WHERE thread_id IN (SELECT thread_id FROM threads WHERE updated_at < ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("purge old runs: %w", err)
	}

	result, err := db.exec(ctx, "DELETE FROM threads WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old threads: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}
