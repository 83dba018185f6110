package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vietddude/relay/internal/core/domain"
)

var payloadFile string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [job_key] [payload]",
	Short: "Submit a metadata-change job to the queue",
	Long: `Enqueue submits one job with a stable dedup key. Re-submitting a key that
is already pending is a no-op.`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&payloadFile, "payload-file", "", "read the payload from a file instead of an argument")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	var payload []byte
	switch {
	case payloadFile != "":
		payload, err = os.ReadFile(payloadFile)
		if err != nil {
			slog.Error("Failed to read payload file", "error", err)
			os.Exit(1)
		}
	case len(args) == 2:
		payload = []byte(args[1])
	default:
		fmt.Println("Provide a payload argument or --payload-file")
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := buildApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	now := time.Now()
	job := &domain.Job{
		ID:          uuid.New().String(),
		JobKey:      args[0],
		Payload:     payload,
		EnqueuedAt:  now,
		NextRetryAt: now,
	}

	if err := app.queue.Enqueue(ctx, job); err != nil {
		slog.Error("Failed to enqueue job", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Enqueued job %s (key %s)\n", job.ID, job.JobKey)
}
