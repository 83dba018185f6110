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

func deadLetterSetKey() string          { return "relay:dead_letters" }
func deadLetterKey(id string) string    { return "relay:dead_letter:" + id }
func deadLetterJobKey(id string) string { return "relay:dead_letter_job:" + id }

// DeadLetterRepo implements storage.DeadLetterRepository on Redis: a sorted
// set scored by failure time over JSON entry blobs, with a per-job index for
// idempotent archiving.
type DeadLetterRepo struct {
	rdb *redis.Client
}

// NewDeadLetterRepo creates a Redis-backed dead letter archive.
func NewDeadLetterRepo(client *Client) *DeadLetterRepo {
	return &DeadLetterRepo{rdb: client.rdb}
}

// Add persists the failure record, replacing any previous record for the
// same job.
func (r *DeadLetterRepo) Add(ctx context.Context, entry *domain.DeadLetterEntry) error {
	if oldID, err := r.rdb.Get(ctx, deadLetterJobKey(entry.JobID)).Result(); err == nil && oldID != "" {
		pipe := r.rdb.TxPipeline()
		pipe.ZRem(ctx, deadLetterSetKey(), oldID)
		pipe.Del(ctx, deadLetterKey(oldID))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("replace dead letter: %w", err)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, deadLetterKey(entry.ID), data, 0)
	pipe.Set(ctx, deadLetterJobKey(entry.JobID), entry.ID, 0)
	pipe.ZAdd(ctx, deadLetterSetKey(), redis.Z{
		Score:  float64(entry.FailedAt.UnixNano()),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add dead letter: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *DeadLetterRepo) Recent(ctx context.Context, limit int) ([]*domain.DeadLetterEntry, error) {
	ids, err := r.rdb.ZRevRange(ctx, deadLetterSetKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	entries := make([]*domain.DeadLetterEntry, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, deadLetterKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load dead letter %s: %w", id, err)
		}

		var entry domain.DeadLetterEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// Count returns the total number of archived entries.
func (r *DeadLetterRepo) Count(ctx context.Context) (int, error) {
	count, err := r.rdb.ZCard(ctx, deadLetterSetKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return int(count), nil
}

// GetByID returns one entry, or storage.ErrNotFound.
func (r *DeadLetterRepo) GetByID(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	data, err := r.rdb.Get(ctx, deadLetterKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}

	var entry domain.DeadLetterEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	return &entry, nil
}

// PurgeOlderThan removes entries that failed before cutoff.
func (r *DeadLetterRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	max := fmt.Sprintf("(%d", cutoff.UnixNano())
	ids, err := r.rdb.ZRangeByScore(ctx, deadLetterSetKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan old dead letters: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := r.rdb.TxPipeline()
	for _, id := range ids {
		entry, err := r.GetByID(ctx, id)
		if err == nil {
			pipe.Del(ctx, deadLetterJobKey(entry.JobID))
		}
		pipe.Del(ctx, deadLetterKey(id))
		pipe.ZRem(ctx, deadLetterSetKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return int64(len(ids)), nil
}
