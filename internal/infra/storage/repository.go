// Package storage defines the persistence interfaces for the job queue and
// the dead letter archive. Backends: sqlite (default), postgres, redis.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("record not found")
)

// QueueStats holds counts by readiness.
type QueueStats struct {
	Pending   int // all jobs in the queue
	Ready     int // backoff elapsed, eligible for the next fetch
	Scheduled int // waiting out their backoff
}

// QueueRepository is the durable, crash-safe job queue. A fetched job stays
// visible until acked, so an interrupted invocation loses nothing; delivery
// is at-least-once.
type QueueRepository interface {
	// Enqueue inserts the job unless a pending job with the same job key
	// already exists. Re-submission is idempotent.
	Enqueue(ctx context.Context, job *domain.Job) error

	// NextReady returns the next job whose backoff has elapsed, FIFO by
	// enqueue time, waiting up to wait for one to become ready. Returns
	// (nil, nil) when none is ready in time.
	NextReady(ctx context.Context, wait time.Duration) (*domain.Job, error)

	// Ack permanently removes a delivered job.
	Ack(ctx context.Context, job *domain.Job) error

	// Requeue atomically replaces old with next (incremented retry
	// metadata). The backing stores have no in-place update; retry is a
	// remove-old/insert-new pair in one transaction.
	Requeue(ctx context.Context, old, next *domain.Job) error

	// Stats returns queue counts by readiness.
	Stats(ctx context.Context) (QueueStats, error)

	Close() error
}

// DeadLetterRepository is the terminal archive for jobs that cannot succeed.
// Entries never automatically re-enter the queue.
type DeadLetterRepository interface {
	// Add persists the full failure record. Adding the same job twice is
	// idempotent, so a crash between archive and ack converges on retry.
	Add(ctx context.Context, entry *domain.DeadLetterEntry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.DeadLetterEntry, error)

	// Count returns the total number of archived entries.
	Count(ctx context.Context) (int, error)

	// GetByID returns one entry, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.DeadLetterEntry, error)

	// PurgeOlderThan removes entries that failed before cutoff and returns
	// how many were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
