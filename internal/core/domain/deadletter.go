package domain

import "time"

// DeadLetterEntry is the terminal record of a job that exhausted its retry
// budget or failed permanently. Entries never re-enter the queue on their own.
type DeadLetterEntry struct {
	ID           string     `json:"id"            db:"id"`
	JobID        string     `json:"job_id"        db:"job_id"`
	JobKey       string     `json:"job_key"       db:"job_key"`
	Payload      []byte     `json:"payload"       db:"payload"`
	ErrorClass   ErrorClass `json:"error_class"   db:"error_class"`
	ErrorMessage string     `json:"error_message" db:"error_message"`
	RetryCount   int        `json:"retry_count"   db:"retry_count"`
	FailedAt     time.Time  `json:"failed_at"`
}
