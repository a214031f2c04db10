package csvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quiz-leaderboard/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "leaderboard.csv"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestCreateAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}

	rows, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Name != "alice" || row.Status != domain.StatusProcessing || row.CurrentIndex != 0 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.CorrectRate != nil || row.AvgResponseTime != nil || row.JudgeScore != nil || row.CompletedAt != nil {
		t.Fatalf("fresh row must not carry metrics: %+v", row)
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Create(ctx, "alice", "http://a.example/answer")
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	rows, _ := store.Snapshot(ctx)
	if len(rows) != 1 {
		t.Fatalf("duplicate create must leave exactly one row, got %d", len(rows))
	}

	// Same name on a different endpoint is a distinct submission.
	if err := store.Create(ctx, "alice", "http://b.example/answer"); err != nil {
		t.Fatalf("create with new endpoint: %v", err)
	}
}

func TestUpdateProgress(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateProgress(ctx, "alice", "http://a.example/answer", 7); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	rows, _ := store.Snapshot(ctx)
	if rows[0].CurrentIndex != 7 {
		t.Fatalf("expected index 7, got %d", rows[0].CurrentIndex)
	}
}

func TestUpdateProgressMissingRowIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.UpdateProgress(ctx, "ghost", "http://g.example", 3); err != nil {
		t.Fatalf("missing row must be a warned no-op, got %v", err)
	}
	rows, _ := store.Snapshot(ctx)
	if len(rows) != 0 {
		t.Fatalf("no row should appear, got %d", len(rows))
	}
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Complete(ctx, "alice", "http://a.example/answer", 85.5, 0.42, 0.9); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rows, _ := store.Snapshot(ctx)
	row := rows[0]
	if row.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", row.Status)
	}
	if row.CorrectRate == nil || *row.CorrectRate != 85.5 {
		t.Fatalf("unexpected correct rate: %v", row.CorrectRate)
	}
	if row.AvgResponseTime == nil || *row.AvgResponseTime != 0.42 {
		t.Fatalf("unexpected avg response time: %v", row.AvgResponseTime)
	}
	if row.JudgeScore == nil || *row.JudgeScore != 0.9 {
		t.Fatalf("unexpected judge score: %v", row.JudgeScore)
	}
	if row.CompletedAt == nil {
		t.Fatal("completion time must be set")
	}
}

func TestFailLeavesNoPartialMetrics(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateProgress(ctx, "alice", "http://a.example/answer", 3); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if err := store.Fail(ctx, "alice", "http://a.example/answer", "API call failed: question 3"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rows, _ := store.Snapshot(ctx)
	row := rows[0]
	if row.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", row.Status)
	}
	if row.CurrentIndex != 3 {
		t.Fatalf("expected checkpoint at 3, got %d", row.CurrentIndex)
	}
	if row.CorrectRate != nil || row.AvgResponseTime != nil || row.JudgeScore != nil {
		t.Fatalf("failed run must publish no metrics: %+v", row)
	}
	if row.CompletedAt == nil {
		t.Fatal("completion time must be set on failure")
	}
}

func TestSnapshotSurvivesReadFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := os.Remove(store.path); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}

	rows, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot must not propagate read failures, got %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty table, got %d rows", len(rows))
	}
}

func TestReopenReadsPersistedRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "leaderboard.csv")

	first, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := first.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := first.Complete(ctx, "alice", "http://a.example/answer", 100.0, 0.1, 1.0); err != nil {
		t.Fatalf("complete: %v", err)
	}

	second, err := New(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	rows, _ := second.Snapshot(ctx)
	if len(rows) != 1 || rows[0].Status != domain.StatusCompleted || *rows[0].CorrectRate != 100.0 {
		t.Fatalf("persisted row mismatch: %+v", rows)
	}
}

func TestConcurrentProgressUpdatesKeepRowsIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.backoff = 10 * time.Millisecond
	store.maxAttempts = 50

	if err := store.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if err := store.Create(ctx, "bob", "http://b.example/answer"); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	const steps = 10
	var wg sync.WaitGroup
	update := func(name, endpoint string) {
		defer wg.Done()
		for i := 1; i <= steps; i++ {
			if err := store.UpdateProgress(ctx, name, endpoint, i); err != nil {
				t.Errorf("update %s: %v", name, err)
				return
			}
		}
	}
	wg.Add(2)
	go update("alice", "http://a.example/answer")
	go update("bob", "http://b.example/answer")
	wg.Wait()

	rows, _ := store.Snapshot(ctx)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.CurrentIndex != steps {
			t.Fatalf("row %s lost updates: index %d, want %d", row.Name, row.CurrentIndex, steps)
		}
		if row.Status != domain.StatusProcessing {
			t.Fatalf("row %s status corrupted: %s", row.Name, row.Status)
		}
	}
}

func TestReplaceKeepsBackup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateProgress(ctx, "alice", "http://a.example/answer", 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := os.Stat(store.path + ".bak"); err != nil {
		t.Fatalf("expected backup of previous contents: %v", err)
	}
}
