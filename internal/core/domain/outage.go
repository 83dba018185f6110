package domain

import "time"

// OutageRecord is one breaker-open interval. EndedAt is nil while the outage
// is ongoing; Duration is in seconds once completed.
type OutageRecord struct {
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at"`
	Duration     float64    `json:"duration"`
	JobsAffected int        `json:"jobs_affected"`
}

// Completed reports whether the outage has ended.
func (r *OutageRecord) Completed() bool {
	return r.EndedAt != nil
}
