package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/rise/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenAndMigrate(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func sampleState(threadID string) models.RunState {
	s := models.NewRunState(threadID)
	s.RunID = "run-1"
	return s.Apply(models.StateUpdate{
		Messages: []models.Turn{
			models.UserTurn("Calculate the sum of 10, 20, 30"),
			models.AssistantTurn("math_team", "The sum of 10, 20, 30 is 60"),
		},
		Plan: &models.Plan{ID: "p1", Goal: "sum", Steps: []models.PlanStep{
			{ID: "s1", Description: "sum", Team: "math_team", Tools: []string{"calculate_sum"}},
		}},
		Progress: map[string]models.StepStatus{"s1": models.StepCompleted},
	})
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	path := filepath.Join(nested, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("parent directories not created: %s", nested)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// On Linux, files cannot be created under /proc.
	_, err := Open("/proc/nonexistent/test.db")
	if err == nil {
		t.Error("expected error opening db at invalid path")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate (iteration %d) failed: %v", i, err)
		}
	}

	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}
}

func TestLoad_UnknownThread(t *testing.T) {
	db := setupTestDB(t)

	_, ok, err := db.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ok {
		t.Error("expected no state for unknown thread")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	want := sampleState("thread-1")

	if err := db.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, ok, err := db.Load(ctx, "thread-1")
	if err != nil || !ok {
		t.Fatalf("Load = (%v, %v), want found", ok, err)
	}

	if got.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", got.RunID)
	}
	if len(got.Messages) != 2 || got.Messages[1].Name != "math_team" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if plan := got.LatestPlan(); plan == nil || plan.ID != "p1" || plan.Steps[0].Tools[0] != "calculate_sum" {
		t.Errorf("LatestPlan = %+v", plan)
	}
	if got.Progress["s1"] != models.StepCompleted {
		t.Errorf("Progress = %v", got.Progress)
	}
}

func TestSave_ReplacesThread(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := sampleState("thread-1")
	if err := db.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s = s.Apply(models.StateUpdate{Messages: []models.Turn{models.UserTurn("and the average?")}})
	if err := db.Save(ctx, s); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, _, err := db.Load(ctx, "thread-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Errorf("got %d messages, want 3", len(got.Messages))
	}
	if ids := db.Threads(); len(ids) != 1 {
		t.Errorf("Threads() = %v, want one thread", ids)
	}
}

func TestSave_RequiresThreadID(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Save(context.Background(), models.RunState{}); err == nil {
		t.Error("expected error saving state without thread id")
	}
}

func TestListThreads(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		s := sampleState(id)
		s.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := db.Save(ctx, s); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	threads, err := db.ListThreads(ctx, 0)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 3 {
		t.Fatalf("got %d threads, want 3", len(threads))
	}
	if threads[0].ThreadID != "c" || threads[2].ThreadID != "a" {
		t.Errorf("order = %s, %s, %s; want most recent first", threads[0].ThreadID, threads[1].ThreadID, threads[2].ThreadID)
	}
	if threads[0].Messages != 2 || threads[0].RunID != "run-1" {
		t.Errorf("summary = %+v", threads[0])
	}

	limited, err := db.ListThreads(ctx, 2)
	if err != nil {
		t.Fatalf("ListThreads(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d threads, want 2", len(limited))
	}

	if got := db.Threads(); len(got) != 3 || got[0] != "a" {
		t.Errorf("Threads() = %v, want sorted ids", got)
	}
}

func TestRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	if err := db.RecordRun(ctx, RunRecord{RunID: "r1"}); err == nil {
		t.Error("expected error for run without thread id")
	}

	records := []RunRecord{
		{RunID: "r1", ThreadID: "t1", Request: "sum", Outcome: RunCompleted, Steps: 7, StartedAt: start, FinishedAt: start.Add(2 * time.Second)},
		{RunID: "r2", ThreadID: "t1", Request: "poem", Outcome: RunFailed, Error: "replan limit exceeded", Replans: 2, StartedAt: start.Add(time.Second)},
		{RunID: "r3", ThreadID: "t2", Outcome: RunCompleted, StartedAt: start},
	}
	for _, r := range records {
		if err := db.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun %s failed: %v", r.RunID, err)
		}
	}

	runs, err := db.ListRuns(ctx, "t1")
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != "r1" || runs[0].Steps != 7 || runs[0].Duration() != 2*time.Second {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].Outcome != RunFailed || runs[1].Replans != 2 || runs[1].Error == "" {
		t.Errorf("runs[1] = %+v", runs[1])
	}
}

func TestDeleteAndPurge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := sampleState("old")
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	fresh := sampleState("fresh")
	for _, s := range []models.RunState{old, fresh} {
		if err := db.Save(ctx, s); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := db.RecordRun(ctx, RunRecord{RunID: s.ThreadID + "-run", ThreadID: s.ThreadID, Outcome: RunCompleted}); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	n, err := db.PurgeOldThreads(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldThreads failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d threads, want 1", n)
	}
	if runs, _ := db.ListRuns(ctx, "old"); len(runs) != 0 {
		t.Errorf("runs of purged thread remain: %v", runs)
	}

	if err := db.DeleteThread(ctx, "fresh"); err != nil {
		t.Fatalf("DeleteThread failed: %v", err)
	}
	if err := db.DeleteThread(ctx, "never-existed"); err != nil {
		t.Errorf("DeleteThread on unknown thread: %v", err)
	}
	if ids := db.Threads(); len(ids) != 0 {
		t.Errorf("Threads() = %v, want none", ids)
	}
}
