package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"property_lifecycle_engine/internal/infra/config"
	"property_lifecycle_engine/internal/infra/logger"

	"github.com/spf13/cobra"
)

var cfg *config.AppConfig

var rootCmd = &cobra.Command{
	Use:   "lifecycled",
	Short: "Date-driven lifecycle promotion and notification dispatch for property records",
	Long: `lifecycled advances rent invoices, post-dated cheques, compliance schedules and
documents through their statuses as dates pass, queues one notification per milestone,
and delivers the queue with bounded retries.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		cfg = loaded
		logger.Init(cfg)
		return nil
	},
}

func main() {
	// Signal-aware context for graceful cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
