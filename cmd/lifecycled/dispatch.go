package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dispatchBatchSize int

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one notification dispatch cycle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		channel, _, err := rt.channel()
		if err != nil {
			return err
		}
		batch := dispatchBatchSize
		if batch <= 0 {
			batch = cfg.DispatchBatchSize
		}

		report, err := rt.dispatcher(channel).RunCycle(ctx, rt.clock.Now(), batch)
		if err != nil {
			return fmt.Errorf("dispatching: %w", err)
		}
		fmt.Printf("Reclaimed %d, claimed %d: sent %d, retried %d, failed terminally %d, unrecorded %d\n",
			report.Reclaimed, report.Claimed, report.Sent, report.Retried, report.FailedTerminal, report.Errors)
		return nil
	},
}

func init() {
	dispatchCmd.Flags().IntVar(&dispatchBatchSize, "batch-size", 0, "Tasks to claim (default DISPATCH_BATCH_SIZE)")
	rootCmd.AddCommand(dispatchCmd)
}
