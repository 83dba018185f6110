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

// DeadLetterRepo implements storage.DeadLetterRepository on SQLite.
type DeadLetterRepo struct {
	db *DB
}

// NewDeadLetterRepo creates a SQLite-backed dead letter archive.
func NewDeadLetterRepo(db *DB) *DeadLetterRepo {
	return &DeadLetterRepo{db: db}
}

type deadLetterRow struct {
	ID           string `db:"id"`
	JobID        string `db:"job_id"`
	JobKey       string `db:"job_key"`
	Payload      []byte `db:"payload"`
	ErrorClass   string `db:"error_class"`
	ErrorMessage string `db:"error_message"`
	RetryCount   int    `db:"retry_count"`
	FailedAt     int64  `db:"failed_at"`
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
		FailedAt:     time.Unix(0, row.FailedAt),
	}
}

// Add persists the failure record. Re-archiving the same job (crash between
// archive and ack) replaces the previous record instead of erroring.
func (r *DeadLetterRepo) Add(ctx context.Context, entry *domain.DeadLetterEntry) error {
	query := `
		INSERT INTO dead_letters (id, job_id, job_key, payload, error_class, error_message, retry_count, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			error_class = excluded.error_class,
			error_message = excluded.error_message,
			retry_count = excluded.retry_count,
			failed_at = excluded.failed_at
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.JobID,
		entry.JobKey,
		entry.Payload,
		string(entry.ErrorClass),
		entry.ErrorMessage,
		entry.RetryCount,
		entry.FailedAt.UnixNano(),
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
		FROM dead_letters
		ORDER BY failed_at DESC
		LIMIT ?
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
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM dead_letters`); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return count, nil
}

// GetByID returns one entry, or storage.ErrNotFound.
func (r *DeadLetterRepo) GetByID(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	query := `
		SELECT id, job_id, job_key, payload, error_class, error_message, retry_count, failed_at
		FROM dead_letters
		WHERE id = ?
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
		`DELETE FROM dead_letters WHERE failed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return res.RowsAffected()
}
