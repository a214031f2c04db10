package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"quiz-leaderboard/internal/app"
	"quiz-leaderboard/internal/domain"
	"quiz-leaderboard/internal/infra/memory"
)

// countingStore counts snapshot reads that reach the backing store.
type countingStore struct {
	app.SubmissionStore
	reads atomic.Int64
}

func (s *countingStore) Snapshot(ctx context.Context) ([]domain.Submission, error) {
	s.reads.Add(1)
	return s.SubmissionStore.Snapshot(ctx)
}

func newTestCache(t *testing.T) (*SnapshotCache, *countingStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &countingStore{SubmissionStore: memory.NewStore()}
	return NewSnapshotCache(store, client, time.Minute), store
}

func TestSnapshotServedFromCache(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)

	if err := cache.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 5; i++ {
		rows, err := cache.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if len(rows) != 1 || rows[0].Name != "alice" {
			t.Fatalf("unexpected rows: %+v", rows)
		}
	}
	if got := store.reads.Load(); got != 1 {
		t.Fatalf("expected one store read across repeated polls, got %d", got)
	}
}

func TestMutationInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)

	if err := cache.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cache.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if err := cache.UpdateProgress(ctx, "alice", "http://a.example/answer", 4); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	rows, err := cache.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot after mutation: %v", err)
	}
	if rows[0].CurrentIndex != 4 {
		t.Fatalf("stale snapshot after mutation: %+v", rows[0])
	}
	if got := store.reads.Load(); got != 2 {
		t.Fatalf("expected a fresh store read after invalidation, got %d", got)
	}
}

func TestDuplicateCreatePassesThrough(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	if err := cache.Create(ctx, "alice", "http://a.example/answer"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := cache.Create(ctx, "alice", "http://a.example/answer"); err != domain.ErrDuplicateSubmission {
		t.Fatalf("expected duplicate error through the cache, got %v", err)
	}
}
