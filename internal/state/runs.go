package state

import (
	"context"
	"fmt"
	"time"
)

// Run outcomes.
const (
	RunCompleted     = "completed"
	RunFailed        = "failed"
	RunLimitExceeded = "limit_exceeded"
	RunCanceled      = "canceled"
)

// RunRecord is one finished invocation of a thread.
type RunRecord struct {
	RunID      string
	ThreadID   string
	Request    string
	Outcome    string
	Error      string
	Steps      int
	Replans    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordRun stores a finished run. Recording the same run ID again replaces it.
func (db *DB) RecordRun(ctx context.Context, r RunRecord) error {
	if r.RunID == "" || r.ThreadID == "" {
		return fmt.Errorf("record run: run id and thread id are required")
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.FinishedAt
	}

	_, err := db.exec(ctx, `
		INSERT OR REPLACE INTO runs (run_id, thread_id, request, outcome, error, steps, replans, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.ThreadID, r.Request, r.Outcome, r.Error, r.Steps, r.Replans,
		formatTime(r.StartedAt), formatTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	return nil
}

// ListRuns returns a thread's runs, oldest first.
func (db *DB) ListRuns(ctx context.Context, threadID string) ([]RunRecord, error) {
	rows, err := db.query(ctx, `
		SELECT run_id, thread_id, COALESCE(request, ''), outcome, COALESCE(error, ''),
			steps, replans, started_at, finished_at
		FROM runs WHERE thread_id = ? ORDER BY started_at, run_id
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r                   RunRecord
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &r.ThreadID, &r.Request, &r.Outcome, &r.Error,
			&r.Steps, &r.Replans, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at for %s: %w", r.RunID, err)
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parse finished_at for %s: %w", r.RunID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
