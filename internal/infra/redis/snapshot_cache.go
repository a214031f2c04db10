// Package redis caches leaderboard snapshots so the continuously polling
// dashboard does not hit the backing store on every read.
package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-leaderboard/internal/app"
	"quiz-leaderboard/internal/domain"
)

const snapshotKey = "leaderboard:snapshot"

// SnapshotCache wraps a SubmissionStore. Mutations pass through and drop the
// cached snapshot; reads are cache-aside with a TTL, coalesced through
// singleflight so a thundering herd of dashboard polls costs one store read.
type SnapshotCache struct {
	app.SubmissionStore

	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewSnapshotCache(store app.SubmissionStore, client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		SubmissionStore: store,
		client:          client,
		ttl:             ttl,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *SnapshotCache) Create(ctx context.Context, name, endpoint string) error {
	err := c.SubmissionStore.Create(ctx, name, endpoint)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

func (c *SnapshotCache) UpdateProgress(ctx context.Context, name, endpoint string, index int) error {
	err := c.SubmissionStore.UpdateProgress(ctx, name, endpoint, index)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

func (c *SnapshotCache) Complete(ctx context.Context, name, endpoint string, correctRate, avgResponseTime, judgeScore float64) error {
	err := c.SubmissionStore.Complete(ctx, name, endpoint, correctRate, avgResponseTime, judgeScore)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

func (c *SnapshotCache) Fail(ctx context.Context, name, endpoint, message string) error {
	err := c.SubmissionStore.Fail(ctx, name, endpoint, message)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

func (c *SnapshotCache) Snapshot(ctx context.Context) ([]domain.Submission, error) {
	if cached, err := c.client.Get(ctx, snapshotKey).Bytes(); err == nil {
		var rows []domain.Submission
		if err := json.Unmarshal(cached, &rows); err == nil {
			return rows, nil
		}
	}

	result, err, _ := c.sf.Do(snapshotKey, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if cached, err := c.client.Get(ctx, snapshotKey).Bytes(); err == nil {
			var rows []domain.Submission
			if err := json.Unmarshal(cached, &rows); err == nil {
				return rows, nil
			}
		}

		rows, err := c.SubmissionStore.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(rows); err == nil {
			// Best effort; a failed cache write just means the next poll reads through.
			_ = c.client.Set(ctx, snapshotKey, data, c.ttlWithJitter()).Err()
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Submission), nil
}

func (c *SnapshotCache) invalidate(ctx context.Context) {
	_ = c.client.Del(ctx, snapshotKey).Err()
}

func (c *SnapshotCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
