package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/storage"
)

const pollStep = 250 * time.Millisecond

// QueueRepo implements storage.QueueRepository using PostgreSQL.
type QueueRepo struct {
	db  *DB
	now func() time.Time
}

// NewQueueRepo creates a PostgreSQL-backed job queue.
func NewQueueRepo(db *DB) *QueueRepo {
	return &QueueRepo{db: db, now: time.Now}
}

type jobRow struct {
	ID             string    `db:"id"`
	JobKey         string    `db:"job_key"`
	Payload        []byte    `db:"payload"`
	EnqueuedAt     time.Time `db:"enqueued_at"`
	RetryCount     int       `db:"retry_count"`
	NextRetryAt    time.Time `db:"next_retry_at"`
	LastErrorClass string    `db:"last_error_class"`
}

func (row *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:             row.ID,
		JobKey:         row.JobKey,
		Payload:        row.Payload,
		EnqueuedAt:     row.EnqueuedAt,
		RetryCount:     row.RetryCount,
		NextRetryAt:    row.NextRetryAt,
		LastErrorClass: domain.ErrorClass(row.LastErrorClass),
	}
}

// Enqueue inserts the job unless one with the same job key is pending.
func (r *QueueRepo) Enqueue(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO relay_jobs (id, job_key, payload, enqueued_at, retry_count, next_retry_at, last_error_class)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_key) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.JobKey,
		job.Payload,
		job.EnqueuedAt,
		job.RetryCount,
		job.NextRetryAt,
		string(job.LastErrorClass),
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// NextReady polls for the next ready job within the bounded wait.
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
		FROM relay_jobs
		WHERE next_retry_at <= $1
		ORDER BY enqueued_at ASC, id ASC
		LIMIT 1
	`

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, r.now())
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
	if _, err := r.db.ExecContext(ctx, `DELETE FROM relay_jobs WHERE id = $1`, job.ID); err != nil {
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM relay_jobs WHERE id = $1`, old.ID); err != nil {
		return fmt.Errorf("remove old job: %w", err)
	}

	query := `
		INSERT INTO relay_jobs (id, job_key, payload, enqueued_at, retry_count, next_retry_at, last_error_class)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.ExecContext(ctx, query,
		next.ID,
		next.JobKey,
		next.Payload,
		next.EnqueuedAt,
		next.RetryCount,
		next.NextRetryAt,
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

	if err := r.db.GetContext(ctx, &stats.Pending, `SELECT COUNT(*) FROM relay_jobs`); err != nil {
		return stats, fmt.Errorf("count pending jobs: %w", err)
	}

	err := r.db.GetContext(ctx, &stats.Ready,
		`SELECT COUNT(*) FROM relay_jobs WHERE next_retry_at <= $1`, r.now())
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
