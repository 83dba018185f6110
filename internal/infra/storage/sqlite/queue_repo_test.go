package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "relay.db")})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testJob(id, key string, at time.Time) *domain.Job {
	return &domain.Job{
		ID:          id,
		JobKey:      key,
		Payload:     []byte(`{"title":"x"}`),
		EnqueuedAt:  at,
		NextRetryAt: at,
	}
}

func TestEnqueueAndFetch(t *testing.T) {
	repo := NewQueueRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	if err := repo.Enqueue(ctx, testJob("j1", "album:1", now)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := repo.NextReady(ctx, 0)
	if err != nil {
		t.Fatalf("NextReady: %v", err)
	}
	if job == nil || job.ID != "j1" {
		t.Fatalf("got %+v, want j1", job)
	}
	if job.JobKey != "album:1" || string(job.Payload) != `{"title":"x"}` {
		t.Fatalf("round trip lost fields: %+v", job)
	}
}

func TestEnqueueDeduplicatesByJobKey(t *testing.T) {
	repo := NewQueueRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	if err := repo.Enqueue(ctx, testJob("j1", "album:1", now)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Enqueue(ctx, testJob("j2", "album:1", now)); err != nil {
		t.Fatalf("duplicate enqueue must not error: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 {
		t.Fatalf("pending = %d, want 1 after duplicate enqueue", stats.Pending)
	}

	// The original job wins.
	job, err := repo.NextReady(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != "j1" {
		t.Fatalf("got %s, want the first submission", job.ID)
	}
}

func TestFetchDoesNotRemove(t *testing.T) {
	repo := NewQueueRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	if err := repo.Enqueue(ctx, testJob("j1", "album:1", now)); err != nil {
		t.Fatal(err)
	}

	// Fetching twice without an ack returns the same job: nothing is leased.
	first, err := repo.NextReady(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.NextReady(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil || second == nil || first.ID != second.ID {
		t.Fatalf("fetch leased the job: first=%+v second=%+v", first, second)
	}
}

func TestScheduledJobNotReady(t *testing.T) {
	repo := NewQueueRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	job := testJob("j1", "album:1", now)
	job.NextRetryAt = now.Add(time.Minute)
	if err := repo.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}

	got, err := repo.NextReady(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("scheduled job returned early: %+v", got)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 || stats.Ready != 0 || stats.Scheduled != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	// Once the backoff elapses the job becomes visible.
	repo.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	got, err = repo.NextReady(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "j1" {
		t.Fatalf("got %+v after backoff elapsed", got)
	}
}

func TestFIFOByEnqueueTime(t *testing.T) {
	repo := NewQueueRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	if err := repo.Enqueue(ctx, testJob("j2", "album:2", now.Add(-time.Minute))); err != nil {
		t.Fatal(err)
	}
	if err := repo.Enqueue(ctx, testJob("j1", "album:1", now.Add(-2*time.Minute))); err != nil {
		t.Fatal(err)
	}

	job, err := repo.NextReady(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != "j1" {
		t.Fatalf("got %s, want the oldest job first", job.ID)
	}
}

func TestAckRemoves(t *testing.T) {
	repo := NewQueueRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	job := testJob("j1", "album:1", now)
	if err := repo.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := repo.Ack(ctx, job); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 0 {
		t.Fatalf("pending = %d after ack, want 0", stats.Pending)
	}
}

func TestRequeueSwapsAtomically(t *testing.T) {
	repo := NewQueueRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	old := testJob("j1", "album:1", now)
	if err := repo.Enqueue(ctx, old); err != nil {
		t.Fatal(err)
	}

	next := old.WithRetry("j2", domain.ErrorClassNetwork, now.Add(time.Minute))
	if err := repo.Requeue(ctx, old, next); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 || stats.Scheduled != 1 {
		t.Fatalf("stats = %+v after requeue", stats)
	}

	repo.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	got, err := repo.NextReady(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "j2" || got.RetryCount != 1 || got.LastErrorClass != domain.ErrorClassNetwork {
		t.Fatalf("requeued job %+v", got)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	db, err := Open(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	repo := NewQueueRepo(db)
	repo.SetClock(func() time.Time { return now })
	if err := repo.Enqueue(ctx, testJob("j1", "album:1", now)); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	// As after a crash: a fresh process sees the unacked job.
	db2, err := Open(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db2.Close() }()

	repo2 := NewQueueRepo(db2)
	repo2.SetClock(func() time.Time { return now })
	job, err := repo2.NextReady(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.ID != "j1" {
		t.Fatalf("job lost across reopen: %+v", job)
	}
}
