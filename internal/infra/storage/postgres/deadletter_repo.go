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

// DeadLetterRepo implements storage.DeadLetterRepository using PostgreSQL.
type DeadLetterRepo struct {
	db *DB
}

// NewDeadLetterRepo creates a PostgreSQL-backed dead letter archive.
func NewDeadLetterRepo(db *DB) *DeadLetterRepo {
	return &DeadLetterRepo{db: db}
}

type deadLetterRow struct {
	ID           string    `db:"id"`
	JobID        string    `db:"job_id"`
	JobKey       string    `db:"job_key"`
	Payload      []byte    `db:"payload"`
	ErrorClass   string    `db:"error_class"`
	ErrorMessage string    `db:"error_message"`
	RetryCount   int       `db:"retry_count"`
	FailedAt     time.Time `db:"failed_at"`
}

func (row *deadLetterRow) toDomain() *domain.DeadLetterEntry {
	return &domain.DeadLetterEntry{
		ID:           row.ID,
		JobID:        row.JobID,
		JobKey:       row.JobKey,
		Payload:      row.Payload,
		ErrorClass:   domain.ErrorClass(row.ErrorClass),
		ErrorMessage: row.ErrorMessage,
		RetryCount:   row.RetryCount,
		FailedAt:     row.FailedAt,
	}
}

// Add persists the failure record, idempotent per job.
func (r *DeadLetterRepo) Add(ctx context.Context, entry *domain.DeadLetterEntry) error {
	query := `
		INSERT INTO relay_dead_letters (id, job_id, job_key, payload, error_class, error_message, retry_count, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			error_class = EXCLUDED.error_class,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			failed_at = EXCLUDED.failed_at
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.JobID,
		entry.JobKey,
		entry.Payload,
		string(entry.ErrorClass),
		entry.ErrorMessage,
		entry.RetryCount,
		entry.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("add dead letter: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *DeadLetterRepo) Recent(ctx context.Context, limit int) ([]*domain.DeadLetterEntry, error) {
	query := `
		SELECT id, job_id, job_key, payload, error_class, error_message, retry_count, failed_at
		FROM relay_dead_letters
		ORDER BY failed_at DESC
		LIMIT $1
	`

	var rows []deadLetterRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	entries := make([]*domain.DeadLetterEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries, nil
}

// Count returns the total number of archived entries.
func (r *DeadLetterRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM relay_dead_letters`); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return count, nil
}

// GetByID returns one entry, or storage.ErrNotFound.
func (r *DeadLetterRepo) GetByID(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	query := `
		SELECT id, job_id, job_key, payload, error_class, error_message, retry_count, failed_at
		FROM relay_dead_letters
		WHERE id = $1
	`

	var row deadLetterRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return row.toDomain(), nil
}

// PurgeOlderThan removes entries that failed before cutoff.
func (r *DeadLetterRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM relay_dead_letters WHERE failed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return res.RowsAffected()
}
