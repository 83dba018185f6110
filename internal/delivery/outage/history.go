// Package outage keeps a bounded ledger of breaker-open intervals and
// derives MTTR/MTBF/availability from it.
package outage

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/statefile"
)

// DefaultCapacity bounds the ledger; the oldest record is evicted on overflow.
const DefaultCapacity = 50

// Metrics summarizes the outage ledger.
type Metrics struct {
	MTTR             time.Duration
	MTBF             time.Duration
	Availability     float64
	CompletedOutages int
	OngoingOutage    bool
}

// History is a fixed-capacity circular ledger persisted to
// outage_history.json.
type History struct {
	mu       sync.Mutex
	records  []domain.OutageRecord
	capacity int
	store    *statefile.Store
}

// NewHistory loads the persisted ledger; a missing or corrupted file
// degrades to an empty ledger.
func NewHistory(capacity int, store *statefile.Store) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &History{capacity: capacity, store: store}

	var persisted []domain.OutageRecord
	if err := store.Load(&persisted); err != nil {
		slog.Warn("Outage history unreadable, starting empty", "path", store.Path(), "error", err)
	} else {
		if len(persisted) > capacity {
			persisted = persisted[len(persisted)-capacity:]
		}
		h.records = persisted
	}
	return h
}

// RecordStart opens a new outage record. A second start while one is
// ongoing is a no-op; HALF_OPEN -> OPEN belongs to the same outage.
func (h *History) RecordStart(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.records); n > 0 && !h.records[n-1].Completed() {
		return
	}

	h.records = append(h.records, domain.OutageRecord{StartedAt: now})
	if len(h.records) > h.capacity {
		h.records = h.records[len(h.records)-h.capacity:]
	}
	h.persistLocked()
}

// RecordEnd completes the ongoing outage record, if any.
func (h *History) RecordEnd(now time.Time, jobsAffected int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.records)
	if n == 0 || h.records[n-1].Completed() {
		return
	}

	rec := &h.records[n-1]
	ended := now
	rec.EndedAt = &ended
	rec.Duration = now.Sub(rec.StartedAt).Seconds()
	rec.JobsAffected = jobsAffected
	h.persistLocked()
}

// Records returns a copy of the ledger, oldest first.
func (h *History) Records() []domain.OutageRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.OutageRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Metrics computes MTTR (mean duration of completed outages), MTBF (mean
// interval between consecutive outage starts, defined for >= 2 completed
// outages) and availability = MTBF / (MTBF + MTTR). With no completed outage
// there is no measured downtime and availability is 100%.
func (h *History) Metrics() Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()

	var m Metrics
	var completed []domain.OutageRecord
	for _, rec := range h.records {
		if rec.Completed() {
			completed = append(completed, rec)
		} else {
			m.OngoingOutage = true
		}
	}
	m.CompletedOutages = len(completed)

	if len(completed) == 0 {
		m.Availability = 1.0
		return m
	}

	var totalRepair float64
	for _, rec := range completed {
		totalRepair += rec.Duration
	}
	m.MTTR = time.Duration(totalRepair / float64(len(completed)) * float64(time.Second))

	if len(completed) >= 2 {
		var totalBetween time.Duration
		for i := 1; i < len(completed); i++ {
			totalBetween += completed[i].StartedAt.Sub(completed[i-1].StartedAt)
		}
		m.MTBF = totalBetween / time.Duration(len(completed)-1)
	}

	if m.MTBF+m.MTTR > 0 {
		m.Availability = float64(m.MTBF) / float64(m.MTBF+m.MTTR)
	}
	return m
}

func (h *History) persistLocked() {
	if err := h.store.Save(h.records); err != nil {
		slog.Warn("Failed to persist outage history", "error", err)
	}
}
