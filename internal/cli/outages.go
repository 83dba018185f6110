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

var outagesCmd = &cobra.Command{
	Use:   "outages",
	Short: "Show recorded target outages and reliability metrics",
	Run:   runOutages,
}

func init() {
	rootCmd.AddCommand(outagesCmd)
}

func runOutages(cmd *cobra.Command, args []string) {
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

	records := app.history.Records()
	if len(records) == 0 {
		fmt.Println("No recorded outages")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTED\tENDED\tDURATION\tJOBS AFFECTED")
	for _, rec := range records {
		ended := "ongoing"
		duration := "-"
		if rec.Completed() {
			ended = rec.EndedAt.Format(time.RFC3339)
			duration = (time.Duration(rec.Duration * float64(time.Second))).Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			rec.StartedAt.Format(time.RFC3339), ended, duration, rec.JobsAffected)
	}
	_ = w.Flush()

	m := app.history.Metrics()
	fmt.Println()
	fmt.Printf("Completed outages: %d\n", m.CompletedOutages)
	fmt.Printf("MTTR:              %s\n", m.MTTR.Round(time.Millisecond))
	fmt.Printf("MTBF:              %s\n", m.MTBF.Round(time.Millisecond))
	fmt.Printf("Availability:      %.2f%%\n", m.Availability*100)
}
