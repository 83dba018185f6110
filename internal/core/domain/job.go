package domain

import "time"

// ErrorClass categorizes delivery failures for retry budgeting.
type ErrorClass string

const (
	ErrorClassNetwork      ErrorClass = "network"
	ErrorClassTimeout      ErrorClass = "timeout"
	ErrorClassRateLimited  ErrorClass = "rate_limited"
	ErrorClassServer       ErrorClass = "server_error"
	ErrorClassNotIndexed   ErrorClass = "not_indexed"
	ErrorClassUnclassified ErrorClass = "unclassified"

	// ErrorClassPermanent marks dead-letter entries archived without retry;
	// it never appears on a queued job.
	ErrorClassPermanent ErrorClass = "permanent"
)

// AffectsBreaker reports whether failures of this class count toward opening
// the circuit breaker. Only connectivity/execution failures do; a job the
// target simply hasn't indexed yet says nothing about target health.
func (c ErrorClass) AffectsBreaker() bool {
	switch c {
	case ErrorClassNetwork, ErrorClassTimeout, ErrorClassServer, ErrorClassUnclassified:
		return true
	}
	return false
}

// Job is one unit of pending work: a metadata change to replicate to the
// target service. A Job value is immutable; retrying produces a successor
// value via WithRetry, and the queue swaps old for new atomically.
type Job struct {
	ID             string     `json:"id"              db:"id"`
	JobKey         string     `json:"job_key"         db:"job_key"`
	Payload        []byte     `json:"payload"         db:"payload"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	RetryCount     int        `json:"retry_count"     db:"retry_count"`
	NextRetryAt    time.Time  `json:"next_retry_at"`
	LastErrorClass ErrorClass `json:"last_error_class" db:"last_error_class"`
}

// WithRetry returns the successor job carrying incremented retry metadata.
// The ID changes so the remove-old/insert-new pair never collides.
func (j *Job) WithRetry(id string, class ErrorClass, nextRetryAt time.Time) *Job {
	next := *j
	next.ID = id
	next.RetryCount = j.RetryCount + 1
	next.NextRetryAt = nextRetryAt
	next.LastErrorClass = class
	return &next
}

// Ready reports whether the job's backoff has elapsed.
func (j *Job) Ready(now time.Time) bool {
	return !j.NextRetryAt.After(now)
}
