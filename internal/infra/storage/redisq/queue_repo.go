package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/storage"
)

const pollStep = 250 * time.Millisecond

// Key helpers
func queueKey() string          { return "relay:jobs" }
func jobKey(id string) string   { return "relay:job:" + id }
func dedupKey(kk string) string { return "relay:jobkey:" + kk }

// QueueRepo implements storage.QueueRepository on Redis: a sorted set scored
// by next_retry_at over JSON job blobs, with a dedup key per job_key.
type QueueRepo struct {
	rdb *redis.Client
	now func() time.Time
}

// NewQueueRepo creates a Redis-backed job queue.
func NewQueueRepo(client *Client) *QueueRepo {
	return &QueueRepo{rdb: client.rdb, now: time.Now}
}

// Enqueue inserts the job unless one with the same job key is pending.
func (r *QueueRepo) Enqueue(ctx context.Context, job *domain.Job) error {
	set, err := r.rdb.SetNX(ctx, dedupKey(job.JobKey), job.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve job key: %w", err)
	}
	if !set {
		// A pending job already targets this logical unit.
		return nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.ZAdd(ctx, queueKey(), redis.Z{
		Score:  float64(job.NextRetryAt.UnixNano()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// NextReady polls for the lowest-scored job whose next_retry_at has elapsed.
// The job is not removed; it stays visible until acked.
func (r *QueueRepo) NextReady(ctx context.Context, wait time.Duration) (*domain.Job, error) {
	deadline := r.now().Add(wait)

	for {
		job, err := r.peekReady(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		if !r.now().Before(deadline) {
			return nil, nil
		}

		step := pollStep
		if remaining := deadline.Sub(r.now()); remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(step):
		}
	}
}

func (r *QueueRepo) peekReady(ctx context.Context) (*domain.Job, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, queueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", r.now().UnixNano()),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan ready jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	id := ids[0]
	data, err := r.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Orphaned queue member, drop it.
		r.rdb.ZRem(ctx, queueKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Ack permanently removes the job.
func (r *QueueRepo) Ack(ctx context.Context, job *domain.Job) error {
	pipe := r.rdb.TxPipeline()
	pipe.ZRem(ctx, queueKey(), job.ID)
	pipe.Del(ctx, jobKey(job.ID))
	pipe.Del(ctx, dedupKey(job.JobKey))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Requeue swaps old for next in one pipeline; the dedup key follows the
// successor so the logical unit stays reserved.
func (r *QueueRepo) Requeue(ctx context.Context, old, next *domain.Job) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal retried job: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.ZRem(ctx, queueKey(), old.ID)
	pipe.Del(ctx, jobKey(old.ID))
	pipe.Set(ctx, jobKey(next.ID), data, 0)
	pipe.ZAdd(ctx, queueKey(), redis.Z{
		Score:  float64(next.NextRetryAt.UnixNano()),
		Member: next.ID,
	})
	pipe.Set(ctx, dedupKey(next.JobKey), next.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// Stats returns counts by readiness.
func (r *QueueRepo) Stats(ctx context.Context) (storage.QueueStats, error) {
	var stats storage.QueueStats

	total, err := r.rdb.ZCard(ctx, queueKey()).Result()
	if err != nil {
		return stats, fmt.Errorf("count pending jobs: %w", err)
	}
	stats.Pending = int(total)

	ready, err := r.rdb.ZCount(ctx, queueKey(),
		"-inf", fmt.Sprintf("%d", r.now().UnixNano())).Result()
	if err != nil {
		return stats, fmt.Errorf("count ready jobs: %w", err)
	}
	stats.Ready = int(ready)
	stats.Scheduled = stats.Pending - stats.Ready
	return stats, nil
}

// Close closes the underlying connection.
func (r *QueueRepo) Close() error {
	return r.rdb.Close()
}
