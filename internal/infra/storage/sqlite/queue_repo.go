package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/storage"
)

// pollStep is the sleep between readiness polls inside NextReady's bounded
// wait.
const pollStep = 250 * time.Millisecond

// QueueRepo implements storage.QueueRepository on SQLite.
type QueueRepo struct {
	db  *DB
	now func() time.Time
}

// NewQueueRepo creates a SQLite-backed job queue.
func NewQueueRepo(db *DB) *QueueRepo {
	return &QueueRepo{db: db, now: time.Now}
}

// SetClock overrides the clock, for tests.
func (r *QueueRepo) SetClock(now func() time.Time) {
	r.now = now
}

type jobRow struct {
	ID             string `db:"id"`
	JobKey         string `db:"job_key"`
	Payload        []byte `db:"payload"`
	EnqueuedAt     int64  `db:"enqueued_at"`
	RetryCount     int    `db:"retry_count"`
	NextRetryAt    int64  `db:"next_retry_at"`
	LastErrorClass string `db:"last_error_class"`
}

func (row *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:             row.ID,
		JobKey:         row.JobKey,
		Payload:        row.Payload,
		EnqueuedAt:     time.Unix(0, row.EnqueuedAt),
		RetryCount:     row.RetryCount,
		NextRetryAt:    time.Unix(0, row.NextRetryAt),
		LastErrorClass: domain.ErrorClass(row.LastErrorClass),
	}
}

// Enqueue inserts the job; a pending job with the same job key wins and the
// insert is silently skipped.
func (r *QueueRepo) Enqueue(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, job_key, payload, enqueued_at, retry_count, next_retry_at, last_error_class)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_key) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.JobKey,
		job.Payload,
		job.EnqueuedAt.UnixNano(),
		job.RetryCount,
		job.NextRetryAt.UnixNano(),
		string(job.LastErrorClass),
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// NextReady polls for the next ready job within the bounded wait. The fetch
// does not remove or lease the job; it stays visible until acked, which is
// what makes an interrupted invocation safe.
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
	query := `
		SELECT id, job_key, payload, enqueued_at, retry_count, next_retry_at, last_error_class
		FROM jobs
		WHERE next_retry_at <= ?
		ORDER BY enqueued_at ASC, id ASC
		LIMIT 1
	`

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, r.now().UnixNano())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch next ready job: %w", err)
	}
	return row.toDomain(), nil
}

// Ack permanently removes the job.
func (r *QueueRepo) Ack(ctx context.Context, job *domain.Job) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Requeue swaps old for next in a single transaction.
func (r *QueueRepo) Requeue(ctx context.Context, old, next *domain.Job) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin requeue: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, old.ID); err != nil {
		return fmt.Errorf("remove old job: %w", err)
	}

	query := `
		INSERT INTO jobs (id, job_key, payload, enqueued_at, retry_count, next_retry_at, last_error_class)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		next.ID,
		next.JobKey,
		next.Payload,
		next.EnqueuedAt.UnixNano(),
		next.RetryCount,
		next.NextRetryAt.UnixNano(),
		string(next.LastErrorClass),
	)
	if err != nil {
		return fmt.Errorf("insert retried job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit requeue: %w", err)
	}
	return nil
}

// Stats returns counts by readiness.
func (r *QueueRepo) Stats(ctx context.Context) (storage.QueueStats, error) {
	var stats storage.QueueStats

	if err := r.db.GetContext(ctx, &stats.Pending, `SELECT COUNT(*) FROM jobs`); err != nil {
		return stats, fmt.Errorf("count pending jobs: %w", err)
	}

	err := r.db.GetContext(ctx, &stats.Ready,
		`SELECT COUNT(*) FROM jobs WHERE next_retry_at <= ?`, r.now().UnixNano())
	if err != nil {
		return stats, fmt.Errorf("count ready jobs: %w", err)
	}

	stats.Scheduled = stats.Pending - stats.Ready
	return stats, nil
}

// Close closes the underlying database.
func (r *QueueRepo) Close() error {
	return r.db.Close()
}
