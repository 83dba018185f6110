package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Process jobs until the queue is empty, then exit",
	Long: `Drain runs the delivery loop in the foreground until no pending jobs
remain. Intended for manual catch-up after an outage; bound its runtime with
a process-level timeout if needed.`,
	Run: runDrain,
}

func init() {
	rootCmd.AddCommand(drainCmd)
}

func runDrain(cmd *cobra.Command, args []string) {
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

	processed, err := app.worker.Drain(ctx)
	if err != nil {
		slog.Error("Drain interrupted", "processed", processed, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Drained %d job(s)\n", processed)
}
