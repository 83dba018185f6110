package breaker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/statefile"
)

func newTestBreaker(t *testing.T, cfg Config) (*Breaker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "breaker_state.json")
	return New(cfg, statefile.New(path)), path
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestOpensAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, Config{FailureThreshold: 3})

	b.RecordFailure()
	b.RecordFailure()
	if got := b.State(); got != domain.CircuitClosed {
		t.Fatalf("below threshold: got %s, want CLOSED", got)
	}

	b.RecordFailure()
	if got := b.State(); got != domain.CircuitOpen {
		t.Fatalf("at threshold: got %s, want OPEN", got)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t, Config{FailureThreshold: 3})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if got := b.State(); got != domain.CircuitClosed {
		t.Fatalf("non-consecutive failures opened the breaker: %s", got)
	}
	if snap := b.Snapshot(); snap.FailureCount != 2 {
		t.Fatalf("failure count = %d, want 2", snap.FailureCount)
	}
}

func TestLazyHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, _ := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: 60 * time.Second})

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(fixedClock(start))
	b.RecordFailure()

	b.SetClock(fixedClock(start.Add(59 * time.Second)))
	if got := b.State(); got != domain.CircuitOpen {
		t.Fatalf("before timeout: got %s, want OPEN", got)
	}

	b.SetClock(fixedClock(start.Add(61 * time.Second)))
	if got := b.State(); got != domain.CircuitHalfOpen {
		t.Fatalf("after timeout: got %s, want HALF_OPEN", got)
	}
}

func TestNeverSkipsHalfOpen(t *testing.T) {
	b, _ := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(fixedClock(start))
	b.RecordFailure()

	// Successes while OPEN must not close the circuit directly.
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordSuccess()
	if got := b.State(); got != domain.CircuitOpen {
		t.Fatalf("successes while OPEN changed state to %s", got)
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 2,
	})

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(fixedClock(start))
	b.RecordFailure()

	b.SetClock(fixedClock(start.Add(2 * time.Minute)))
	b.RecordSuccess()
	if got := b.State(); got != domain.CircuitHalfOpen {
		t.Fatalf("one success: got %s, want HALF_OPEN", got)
	}

	b.RecordSuccess()
	if got := b.State(); got != domain.CircuitClosed {
		t.Fatalf("two successes: got %s, want CLOSED", got)
	}

	snap := b.Snapshot()
	if snap.FailureCount != 0 || snap.SuccessCount != 0 || snap.OpenedAt != nil {
		t.Fatalf("counters not reset on close: %+v", snap)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, _ := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(fixedClock(start))
	b.RecordFailure()

	probe := start.Add(2 * time.Minute)
	b.SetClock(fixedClock(probe))
	if got := b.State(); got != domain.CircuitHalfOpen {
		t.Fatalf("got %s, want HALF_OPEN", got)
	}

	b.RecordFailure()
	if got := b.State(); got != domain.CircuitOpen {
		t.Fatalf("got %s, want OPEN after half-open failure", got)
	}

	// OpenedAt must advance so the next recovery window starts from the probe.
	snap := b.Snapshot()
	if snap.OpenedAt == nil || !snap.OpenedAt.Equal(probe) {
		t.Fatalf("opened_at = %v, want %v", snap.OpenedAt, probe)
	}
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breaker_state.json")
	cfg := Config{FailureThreshold: 2, RecoveryTimeout: time.Hour}

	b := New(cfg, statefile.New(path))
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(fixedClock(start))
	b.RecordFailure()
	b.RecordFailure()

	// A fresh instance, as after a process restart, sees the open circuit.
	b2 := New(cfg, statefile.New(path))
	b2.SetClock(fixedClock(start.Add(time.Second)))
	if got := b2.State(); got != domain.CircuitOpen {
		t.Fatalf("restarted instance: got %s, want OPEN", got)
	}
	snap := b2.Snapshot()
	if snap.FailureCount != 2 {
		t.Fatalf("failure count = %d, want 2", snap.FailureCount)
	}
	if snap.OpenedAt == nil || !snap.OpenedAt.Equal(start) {
		t.Fatalf("opened_at = %v, want %v", snap.OpenedAt, start)
	}
}

func TestCorruptedStateDefaultsClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breaker_state.json")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := New(Config{}, statefile.New(path))
	if got := b.State(); got != domain.CircuitClosed {
		t.Fatalf("got %s, want CLOSED for corrupted state", got)
	}
}

func TestMissingStateDefaultsClosed(t *testing.T) {
	b, _ := newTestBreaker(t, Config{})
	if got := b.State(); got != domain.CircuitClosed {
		t.Fatalf("got %s, want CLOSED for missing state", got)
	}
}

func TestResetForcesClosed(t *testing.T) {
	b, _ := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	b.SetClock(fixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))
	b.RecordFailure()
	if got := b.State(); got != domain.CircuitOpen {
		t.Fatalf("setup: got %s, want OPEN", got)
	}

	b.Reset()
	snap := b.Snapshot()
	if snap.State != domain.CircuitClosed || snap.FailureCount != 0 || snap.OpenedAt != nil {
		t.Fatalf("reset left %+v", snap)
	}
}

func TestTransitionHooks(t *testing.T) {
	b, _ := newTestBreaker(t, Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
	})

	var opened, closed []time.Time
	b.SetTransitionHooks(
		func(at time.Time) { opened = append(opened, at) },
		func(at time.Time) { closed = append(closed, at) },
	)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(fixedClock(start))
	b.RecordFailure()

	// HALF_OPEN -> OPEN is the same outage, not a new one.
	b.SetClock(fixedClock(start.Add(2 * time.Minute)))
	b.RecordFailure()

	b.SetClock(fixedClock(start.Add(4 * time.Minute)))
	b.RecordSuccess()

	if len(opened) != 1 || !opened[0].Equal(start) {
		t.Fatalf("onOpen fired %d time(s) at %v, want once at %v", len(opened), opened, start)
	}
	if len(closed) != 1 {
		t.Fatalf("onClose fired %d time(s), want once", len(closed))
	}
}
