package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue, breaker and target status",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := buildApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	stats, err := app.queue.Stats(ctx)
	if err != nil {
		slog.Error("Failed to read queue stats", "error", err)
		os.Exit(1)
	}

	deadCount, err := app.deadLetters.Count(ctx)
	if err != nil {
		slog.Error("Failed to read dead letter count", "error", err)
		os.Exit(1)
	}

	snapshot := app.breaker.Snapshot()
	recoveryState := app.detector.State()
	outageMetrics := app.history.Metrics()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "QUEUE\tPENDING\tREADY\tSCHEDULED\tDEAD")
	_, _ = fmt.Fprintf(w, "jobs\t%d\t%d\t%d\t%d\n", stats.Pending, stats.Ready, stats.Scheduled, deadCount)
	_ = w.Flush()

	fmt.Printf("\nBreaker: %s (failures %d, successes %d)\n",
		snapshot.State, snapshot.FailureCount, snapshot.SuccessCount)
	if snapshot.OpenedAt != nil {
		fmt.Printf("  opened at %s\n", snapshot.OpenedAt.Format(time.RFC3339))
	}

	if !recoveryState.LastCheckTime.IsZero() {
		fmt.Printf("Last health probe: %s (streak: %d ok / %d failed, %d recoveries)\n",
			recoveryState.LastCheckTime.Format(time.RFC3339),
			recoveryState.ConsecutiveSuccesses,
			recoveryState.ConsecutiveFailures,
			recoveryState.RecoveryCount)
	}

	monitor := app.client.Monitor.Stats()
	fmt.Printf("Target endpoint: %s", monitor.Status)
	if monitor.AverageLatency > 0 {
		fmt.Printf(" (avg latency %s)", monitor.AverageLatency.Round(time.Millisecond))
	}
	fmt.Println()

	fmt.Printf("Availability: %.2f%% (%d completed outage(s))\n",
		outageMetrics.Availability*100, outageMetrics.CompletedOutages)
}
