package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var resetBreakerCmd = &cobra.Command{
	Use:   "reset-breaker",
	Short: "Force the circuit breaker back to CLOSED",
	Long: `Reset-breaker is an operator override. It discards the breaker's failure
and success counts and closes the circuit immediately, ending any ongoing
outage record.`,
	Run: runResetBreaker,
}

func init() {
	rootCmd.AddCommand(resetBreakerCmd)
}

func runResetBreaker(cmd *cobra.Command, args []string) {
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

	app.breaker.Reset()
	fmt.Println("Circuit breaker reset to CLOSED")
}
