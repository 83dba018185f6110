package cli

import (
	"context"
	"fmt"

	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/delivery/breaker"
	"github.com/vietddude/relay/internal/delivery/outage"
	"github.com/vietddude/relay/internal/delivery/recovery"
	"github.com/vietddude/relay/internal/delivery/retry"
	"github.com/vietddude/relay/internal/delivery/target"
	"github.com/vietddude/relay/internal/delivery/worker"
	"github.com/vietddude/relay/internal/infra/statefile"
	"github.com/vietddude/relay/internal/infra/storage"
	"github.com/vietddude/relay/internal/infra/storage/postgres"
	"github.com/vietddude/relay/internal/infra/storage/redisq"
	"github.com/vietddude/relay/internal/infra/storage/sqlite"
)

// app holds the wired delivery subsystem for one CLI invocation. Everything
// is injected explicitly; there are no package-level singletons, so tests
// and concurrent invocations stay isolated.
type app struct {
	cfg         *config.AppConfig
	queue       storage.QueueRepository
	deadLetters storage.DeadLetterRepository
	client      *target.HTTPClient
	breaker     *breaker.Breaker
	detector    *recovery.Detector
	history     *outage.History
	worker      *worker.Worker
}

// buildApp constructs repositories per the configured backend and wires the
// worker's collaborators.
func buildApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	queue, deadLetters, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	policy := retry.NewPolicy()
	for class, override := range cfg.Retry {
		policy.SetParams(domain.ErrorClass(class), retry.Params{
			Base:       override.Base,
			Cap:        override.Cap,
			MaxRetries: override.MaxRetries,
		})
	}

	client := target.NewHTTPClient(cfg.Target)
	brk := breaker.New(cfg.Breaker, statefile.New(cfg.BreakerStatePath()))
	detector := recovery.NewDetector(cfg.Recovery, client, statefile.New(cfg.RecoveryStatePath()))
	history := outage.NewHistory(cfg.Outage.HistorySize, statefile.New(cfg.OutageHistoryPath()))

	w := worker.New(cfg.Worker, worker.Deps{
		Queue:       queue,
		DeadLetters: deadLetters,
		Deliverer:   client,
		Policy:      policy,
		Breaker:     brk,
		Detector:    detector,
		History:     history,
	})

	return &app{
		cfg:         cfg,
		queue:       queue,
		deadLetters: deadLetters,
		client:      client,
		breaker:     brk,
		detector:    detector,
		history:     history,
		worker:      w,
	}, nil
}

func openStorage(ctx context.Context, cfg *config.AppConfig) (storage.QueueRepository, storage.DeadLetterRepository, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.SQLite)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return sqlite.NewQueueRepo(db), sqlite.NewDeadLetterRepo(db), nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres storage: %w", err)
		}
		return postgres.NewQueueRepo(db), postgres.NewDeadLetterRepo(db), nil

	case "redis":
		client, err := redisq.NewClient(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis storage: %w", err)
		}
		return redisq.NewQueueRepo(client), redisq.NewDeadLetterRepo(client), nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Close releases the storage backend.
func (a *app) Close() {
	_ = a.queue.Close()
}
