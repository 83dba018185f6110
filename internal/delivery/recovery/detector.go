// Package recovery decides, on each invocation, whether the target deserves
// a health probe while the circuit breaker is not closed, and feeds probe
// results into the breaker.
//
// There is no daemon watching the target; "the target is healthy again" must
// be discovered from a persisted last-check timestamp read on every
// short-lived invocation.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/delivery/target"
	"github.com/vietddude/relay/internal/infra/statefile"
)

// Config holds probe scheduling settings.
type Config struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	return c
}

// BreakerSink receives probe outcomes. The detector never mutates breaker
// state directly; the breaker stays the single writer for its transitions.
type BreakerSink interface {
	State() domain.CircuitState
	RecordSuccess()
	RecordFailure()
}

// Detector schedules and performs target health probes while the breaker is
// open. Its counters persist to recovery_state.json and are diagnostic only.
type Detector struct {
	mu    sync.Mutex
	cfg   Config
	state domain.RecoveryState
	store *statefile.Store
	probe target.HealthProbe
	now   func() time.Time
}

// NewDetector loads persisted recovery state; a missing or corrupted file
// starts from zero values.
func NewDetector(cfg Config, probe target.HealthProbe, store *statefile.Store) *Detector {
	d := &Detector{
		cfg:   cfg.WithDefaults(),
		store: store,
		probe: probe,
		now:   time.Now,
	}

	var persisted domain.RecoveryState
	if err := store.Load(&persisted); err != nil {
		slog.Warn("Recovery state unreadable, starting fresh", "path", store.Path(), "error", err)
	} else {
		d.state = persisted
	}
	return d
}

// SetClock overrides the clock, for tests.
func (d *Detector) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// State returns a copy of the diagnostic counters.
func (d *Detector) State() domain.RecoveryState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ShouldCheck reports whether a probe is due. Probes run only while the
// breaker is not closed, and at most once per probe interval; the hot path
// never wastes a probe on a healthy target.
func (d *Detector) ShouldCheck(state domain.CircuitState, now time.Time) bool {
	if state == domain.CircuitClosed {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.LastCheckTime.IsZero() {
		return true
	}
	return now.Sub(d.state.LastCheckTime) >= d.cfg.ProbeInterval
}

// RunCheck performs one bounded health probe and feeds the result into the
// breaker. Returns whether the target looked healthy.
func (d *Detector) RunCheck(ctx context.Context, sink BreakerSink) bool {
	probeCtx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	healthy, latency, err := d.probe.Probe(probeCtx)
	if err != nil {
		healthy = false
	}

	d.mu.Lock()
	d.state.LastCheckTime = d.now()
	if healthy {
		d.state.ConsecutiveSuccesses++
		d.state.ConsecutiveFailures = 0
	} else {
		d.state.ConsecutiveFailures++
		d.state.ConsecutiveSuccesses = 0
	}
	d.persistLocked()
	d.mu.Unlock()

	slog.Info("Target health probe",
		"healthy", healthy,
		"latency", latency,
		"error", err)

	if healthy {
		sink.RecordSuccess()
	} else {
		sink.RecordFailure()
	}

	// The breaker alone decides when the target counts as recovered; we just
	// record that it happened.
	if healthy && sink.State() == domain.CircuitClosed {
		d.mu.Lock()
		now := d.now()
		d.state.LastRecoveryTime = &now
		d.state.RecoveryCount++
		d.persistLocked()
		d.mu.Unlock()
	}

	return healthy
}

func (d *Detector) persistLocked() {
	if err := d.store.Save(d.state); err != nil {
		slog.Warn("Failed to persist recovery state", "error", err)
	}
}
