// Package breaker implements a persisted circuit breaker gating delivery
// attempts against the target service.
//
// The process hosting the breaker is short-lived, so there is no timer
// driving OPEN -> HALF_OPEN; the transition is evaluated lazily on every
// state read. State persists to breaker_state.json and is reloaded on
// construction; a missing or corrupted file degrades to CLOSED.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/statefile"
)

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// WithDefaults fills zero fields with sensible defaults.
func (c Config) WithDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	return c
}

// Breaker is the single writer for circuit state. Transitions are monotonic:
// CLOSED -> OPEN -> HALF_OPEN -> {CLOSED, OPEN}; no state is skipped.
type Breaker struct {
	mu    sync.Mutex
	cfg   Config
	state domain.CircuitBreakerState
	store *statefile.Store
	now   func() time.Time

	onOpen  func(time.Time)
	onClose func(time.Time)
}

// New loads persisted state from the store, defaulting to CLOSED when the
// file is absent or unreadable.
func New(cfg Config, store *statefile.Store) *Breaker {
	b := &Breaker{
		cfg:   cfg.WithDefaults(),
		state: domain.DefaultCircuitBreakerState(),
		store: store,
		now:   time.Now,
	}

	var persisted domain.CircuitBreakerState
	if err := store.Load(&persisted); err != nil {
		slog.Warn("Breaker state unreadable, defaulting to CLOSED", "path", store.Path(), "error", err)
	} else if persisted.State == "" {
		slog.Warn("Breaker state empty, defaulting to CLOSED", "path", store.Path())
	} else {
		b.state = persisted
	}
	return b
}

// SetClock overrides the clock, for tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SetTransitionHooks registers callbacks fired when an outage starts
// (CLOSED -> OPEN) and ends (-> CLOSED). HALF_OPEN -> OPEN does not fire
// onOpen: the outage it belongs to is still ongoing.
func (b *Breaker) SetTransitionHooks(onOpen, onClose func(time.Time)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onOpen = onOpen
	b.onClose = onClose
}

// State returns the current gate position, applying the lazy OPEN ->
// HALF_OPEN transition first.
func (b *Breaker) State() domain.CircuitState {
	b.mu.Lock()
	state := b.evaluateLocked()
	b.mu.Unlock()
	return state
}

// Snapshot returns a copy of the full persisted state after lazy evaluation.
func (b *Breaker) Snapshot() domain.CircuitBreakerState {
	b.mu.Lock()
	b.evaluateLocked()
	snapshot := b.state
	b.mu.Unlock()
	return snapshot
}

// Config returns the configured thresholds.
func (b *Breaker) Config() Config {
	return b.cfg
}

// evaluateLocked applies the recovery-timeout transition and returns the
// effective state. Caller holds b.mu.
func (b *Breaker) evaluateLocked() domain.CircuitState {
	if b.state.State == domain.CircuitOpen && b.state.OpenedAt != nil {
		if b.now().Sub(*b.state.OpenedAt) >= b.cfg.RecoveryTimeout {
			b.state.State = domain.CircuitHalfOpen
			b.state.SuccessCount = 0
			b.persistLocked()
			slog.Info("Circuit breaker half-open, probing target",
				"opened_at", b.state.OpenedAt.Format(time.RFC3339))
		}
	}
	return b.state.State
}

// RecordSuccess registers one successful delivery or health probe.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var closedAt *time.Time

	switch b.evaluateLocked() {
	case domain.CircuitClosed:
		if b.state.FailureCount != 0 {
			b.state.FailureCount = 0
			b.persistLocked()
		}
	case domain.CircuitHalfOpen:
		b.state.SuccessCount++
		if b.state.SuccessCount >= b.cfg.SuccessThreshold {
			now := b.now()
			b.state = domain.DefaultCircuitBreakerState()
			closedAt = &now
			slog.Info("Circuit breaker closed, target recovered")
		}
		b.persistLocked()
	case domain.CircuitOpen:
		// Recovery timeout has not elapsed; a stray success cannot skip
		// HALF_OPEN.
	}

	onClose := b.onClose
	b.mu.Unlock()

	if closedAt != nil && onClose != nil {
		onClose(*closedAt)
	}
}

// RecordFailure registers one failed delivery or health probe.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var openedAt *time.Time

	switch b.evaluateLocked() {
	case domain.CircuitClosed:
		b.state.FailureCount++
		if b.state.FailureCount >= b.cfg.FailureThreshold {
			now := b.now()
			b.state.State = domain.CircuitOpen
			b.state.OpenedAt = &now
			b.state.SuccessCount = 0
			openedAt = &now
			slog.Warn("Circuit breaker opened",
				"consecutive_failures", b.state.FailureCount,
				"failure_threshold", b.cfg.FailureThreshold)
		}
		b.persistLocked()
	case domain.CircuitHalfOpen:
		now := b.now()
		b.state.State = domain.CircuitOpen
		b.state.OpenedAt = &now
		b.state.SuccessCount = 0
		b.persistLocked()
		slog.Warn("Circuit breaker re-opened, target still failing")
	case domain.CircuitOpen:
		// Already open; delivery attempts are gated so nothing to count.
	}

	onOpen := b.onOpen
	b.mu.Unlock()

	if openedAt != nil && onOpen != nil {
		onOpen(*openedAt)
	}
}

// Reset is the operator override forcing the breaker CLOSED.
func (b *Breaker) Reset() {
	b.mu.Lock()
	wasOpen := b.state.State != domain.CircuitClosed
	now := b.now()
	b.state = domain.DefaultCircuitBreakerState()
	b.persistLocked()
	onClose := b.onClose
	b.mu.Unlock()

	slog.Info("Circuit breaker reset by operator")
	if wasOpen && onClose != nil {
		onClose(now)
	}
}

func (b *Breaker) persistLocked() {
	if err := b.store.Save(b.state); err != nil {
		slog.Warn("Failed to persist breaker state", "error", err)
	}
}
