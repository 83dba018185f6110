// Package worker composes the queue, retry policy, circuit breaker, recovery
// detector, outage history and dead letter store into the delivery loop.
//
// One consumer, one job at a time. The host may kill the process at any
// point: ack happens only on confirmed success, so an interrupted job stays
// pending and is retried on the next invocation.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/delivery/breaker"
	"github.com/vietddude/relay/internal/delivery/metrics"
	"github.com/vietddude/relay/internal/delivery/outage"
	"github.com/vietddude/relay/internal/delivery/recovery"
	"github.com/vietddude/relay/internal/delivery/retry"
	"github.com/vietddude/relay/internal/delivery/target"
	"github.com/vietddude/relay/internal/infra/storage"
)

// Config holds worker loop timing.
type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"` // idle sleep between iterations
	IdleWait     time.Duration `yaml:"idle_wait"`     // bounded wait for the next ready job
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.IdleWait <= 0 {
		c.IdleWait = time.Second
	}
	return c
}

// Deps are the collaborators injected into the worker. Explicit injection
// (no package-level singletons) keeps test instances isolated.
type Deps struct {
	Queue       storage.QueueRepository
	DeadLetters storage.DeadLetterRepository
	Deliverer   target.Deliverer
	Policy      *retry.Policy
	Breaker     *breaker.Breaker
	Detector    *recovery.Detector
	History     *outage.History
}

// Worker is the single consumer driving deliveries.
type Worker struct {
	cfg   Config
	deps  Deps
	now   func() time.Time
	newID func() string
}

// New wires the worker and registers itself as the breaker's transition
// observer so outage records have a single writer.
func New(cfg Config, deps Deps) *Worker {
	w := &Worker{
		cfg:   cfg.WithDefaults(),
		deps:  deps,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}

	deps.Breaker.SetTransitionHooks(w.onBreakerOpen, w.onBreakerClose)
	return w
}

// SetClock overrides the clock, for tests.
func (w *Worker) SetClock(now func() time.Time) {
	w.now = now
}

func (w *Worker) onBreakerOpen(at time.Time) {
	w.deps.History.RecordStart(at)
}

func (w *Worker) onBreakerClose(at time.Time) {
	// Jobs still pending when the target recovers are the ones the outage
	// held up.
	affected := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stats, err := w.deps.Queue.Stats(ctx); err == nil {
		affected = stats.Pending
	}
	w.deps.History.RecordEnd(at, affected)
}

// RunOnce performs one iteration: gate on the breaker, probe if due, fetch
// one ready job, deliver, classify. Returns whether a job was processed.
// Per-job failures are classified, never propagated; the returned error is
// infrastructure-level only.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	state := w.deps.Breaker.State()
	if state != domain.CircuitClosed && w.deps.Detector.ShouldCheck(state, w.now()) {
		w.deps.Detector.RunCheck(ctx, w.deps.Breaker)
		state = w.deps.Breaker.State()
	}
	observeBreakerState(state)

	if state == domain.CircuitOpen {
		return false, nil
	}

	job, err := w.deps.Queue.NextReady(ctx, w.cfg.IdleWait)
	if err != nil {
		return false, fmt.Errorf("fetch next job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	start := w.now()
	deliverErr := w.deps.Deliverer.Deliver(ctx, job)
	metrics.DeliveryLatency.Observe(w.now().Sub(start).Seconds())

	if deliverErr == nil {
		if err := w.deps.Queue.Ack(ctx, job); err != nil {
			return false, fmt.Errorf("ack delivered job: %w", err)
		}
		w.deps.Breaker.RecordSuccess()
		metrics.JobsDelivered.Inc()
		slog.Info("Job delivered",
			"job_key", job.JobKey,
			"retry_count", job.RetryCount)
		return true, nil
	}

	w.handleFailure(ctx, job, deliverErr)
	return true, nil
}

// handleFailure classifies a delivery error into exactly one outcome:
// permanent -> archive; transient within budget -> requeue with backoff;
// transient over budget -> archive. Only connectivity-class failures touch
// the breaker.
func (w *Worker) handleFailure(ctx context.Context, job *domain.Job, deliverErr error) {
	if target.IsPermanent(deliverErr) {
		w.archive(ctx, job, domain.ErrorClassPermanent, deliverErr)
		return
	}

	class, ok := target.AsTransient(deliverErr)
	if !ok {
		// Unknown failure: retried conservatively as transient, once.
		class = domain.ErrorClassUnclassified
	}

	params := w.deps.Policy.Params(class)
	if job.RetryCount >= params.MaxRetries {
		w.archive(ctx, job, class, deliverErr)
		if class.AffectsBreaker() {
			w.deps.Breaker.RecordFailure()
		}
		return
	}

	delay := w.deps.Policy.Delay(class, job.RetryCount)
	next := job.WithRetry(w.newID(), class, w.now().Add(delay))
	if err := w.deps.Queue.Requeue(ctx, job, next); err != nil {
		slog.Error("Failed to requeue job, it stays pending as-is",
			"job_key", job.JobKey, "error", err)
		return
	}

	metrics.JobsRetried.WithLabelValues(string(class)).Inc()
	slog.Warn("Delivery failed, retry scheduled",
		"job_key", job.JobKey,
		"class", class,
		"retry_count", next.RetryCount,
		"next_retry_in", delay.Round(time.Millisecond),
		"error", deliverErr)

	if class.AffectsBreaker() {
		w.deps.Breaker.RecordFailure()
	}
}

// archive moves the job into the dead letter store and removes it from the
// queue. Archive-then-ack: a crash in between leaves the job pending and the
// idempotent archive converges on the next attempt.
func (w *Worker) archive(ctx context.Context, job *domain.Job, class domain.ErrorClass, cause error) {
	entry := &domain.DeadLetterEntry{
		ID:           w.newID(),
		JobID:        job.ID,
		JobKey:       job.JobKey,
		Payload:      job.Payload,
		ErrorClass:   class,
		ErrorMessage: cause.Error(),
		RetryCount:   job.RetryCount,
		FailedAt:     w.now(),
	}

	if err := w.deps.DeadLetters.Add(ctx, entry); err != nil {
		slog.Error("Failed to archive job, leaving it in the queue",
			"job_key", job.JobKey, "error", err)
		return
	}
	if err := w.deps.Queue.Ack(ctx, job); err != nil {
		slog.Error("Failed to remove archived job from queue",
			"job_key", job.JobKey, "error", err)
		return
	}

	metrics.JobsDeadLettered.WithLabelValues(string(class)).Inc()
	slog.Warn("Job dead-lettered",
		"job_key", job.JobKey,
		"class", class,
		"retry_count", job.RetryCount,
		"error", cause)
}

// Run loops until the context is cancelled, idling for the poll interval
// when the queue is empty or the breaker is open.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("Worker started",
		"poll_interval", w.cfg.PollInterval,
		"idle_wait", w.cfg.IdleWait)

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Worker iteration failed", "error", err)
		}
		w.observeQueueDepth(ctx)

		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// Drain processes until the queue is empty: manual catch-up after an outage.
// Bounded only by the caller's context.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		ok, err := w.RunOnce(ctx)
		if err != nil {
			return processed, err
		}
		if ok {
			processed++
			continue
		}

		stats, err := w.deps.Queue.Stats(ctx)
		if err != nil {
			return processed, fmt.Errorf("queue stats: %w", err)
		}
		if stats.Pending == 0 {
			return processed, nil
		}

		// Jobs remain but none is ready (backoff pending or breaker open);
		// wait and keep going.
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// SweepDeadLetters purges archived entries older than the retention window.
// Run opportunistically at startup.
func (w *Worker) SweepDeadLetters(ctx context.Context, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	cutoff := w.now().AddDate(0, 0, -retentionDays)
	removed, err := w.deps.DeadLetters.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		slog.Warn("Dead letter retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Dead letter retention sweep",
			"removed", removed,
			"retention_days", retentionDays)
	}
}

func (w *Worker) observeQueueDepth(ctx context.Context) {
	if stats, err := w.deps.Queue.Stats(ctx); err == nil {
		metrics.QueueDepth.Set(float64(stats.Pending))
	}
}

func observeBreakerState(state domain.CircuitState) {
	switch state {
	case domain.CircuitClosed:
		metrics.BreakerState.Set(0)
	case domain.CircuitHalfOpen:
		metrics.BreakerState.Set(1)
	case domain.CircuitOpen:
		metrics.BreakerState.Set(2)
	}
}
