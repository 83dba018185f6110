package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/relay/internal/delivery/health"
)

var serveHealth bool

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the delivery loop until interrupted",
	Run:   runWork,
}

func init() {
	workCmd.Flags().BoolVar(&serveHealth, "serve", false, "expose /health and /metrics while working")
	rootCmd.AddCommand(workCmd)
}

func runWork(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	app.worker.SweepDeadLetters(ctx, cfg.DeadLetter.RetentionDays)

	var srv *health.Server
	if serveHealth {
		srv = health.NewServer(app.breaker, app.queue, app.deadLetters, app.history, cfg.Server.Port)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Health server failed", "error", err)
			}
		}()
		slog.Info("Health server listening", "port", cfg.Server.Port)
	}

	if err := app.worker.Run(ctx); err != nil {
		slog.Error("Worker stopped with error", "error", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(shutdownCtx)
	}

	slog.Info("Worker stopped")
}
