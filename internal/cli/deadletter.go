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

var (
	deadLetterLimit    int
	deadLetterPurgeAge int
)

var deadLetterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect and prune the dead letter archive",
}

var deadLetterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent dead-lettered jobs",
	Run:   runDeadLetterList,
}

var deadLetterShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one dead letter entry, payload included",
	Args:  cobra.ExactArgs(1),
	Run:   runDeadLetterShow,
}

var deadLetterPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete dead letters older than the retention window",
	Run:   runDeadLetterPurge,
}

func init() {
	deadLetterListCmd.Flags().IntVar(&deadLetterLimit, "limit", 20, "maximum entries to list")
	deadLetterPurgeCmd.Flags().IntVar(&deadLetterPurgeAge, "older-than-days", 0, "override the configured retention window")
	deadLetterCmd.AddCommand(deadLetterListCmd, deadLetterShowCmd, deadLetterPurgeCmd)
	rootCmd.AddCommand(deadLetterCmd)
}

func runDeadLetterList(cmd *cobra.Command, args []string) {
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

	entries, err := app.deadLetters.Recent(ctx, deadLetterLimit)
	if err != nil {
		slog.Error("Failed to list dead letters", "error", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No dead letters")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJOB KEY\tCLASS\tRETRIES\tFAILED AT\tERROR")
	for _, e := range entries {
		msg := e.ErrorMessage
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.JobKey, e.ErrorClass, e.RetryCount,
			e.FailedAt.Format(time.RFC3339), msg)
	}
	_ = w.Flush()
}

func runDeadLetterShow(cmd *cobra.Command, args []string) {
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

	entry, err := app.deadLetters.GetByID(ctx, args[0])
	if err != nil {
		slog.Error("Failed to fetch dead letter", "id", args[0], "error", err)
		os.Exit(1)
	}

	fmt.Printf("ID:          %s\n", entry.ID)
	fmt.Printf("Job ID:      %s\n", entry.JobID)
	fmt.Printf("Job key:     %s\n", entry.JobKey)
	fmt.Printf("Error class: %s\n", entry.ErrorClass)
	fmt.Printf("Retries:     %d\n", entry.RetryCount)
	fmt.Printf("Failed at:   %s\n", entry.FailedAt.Format(time.RFC3339))
	fmt.Printf("Error:       %s\n", entry.ErrorMessage)
	fmt.Printf("Payload:     %s\n", entry.Payload)
}

func runDeadLetterPurge(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	days := deadLetterPurgeAge
	if days <= 0 {
		days = cfg.DeadLetter.RetentionDays
	}

	ctx := context.Background()
	app, err := buildApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	cutoff := time.Now().AddDate(0, 0, -days)
	purged, err := app.deadLetters.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to purge dead letters", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Purged %d dead letter(s) older than %d day(s)\n", purged, days)
}
