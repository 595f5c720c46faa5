package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain <cheque-id>",
	Short: "Show the replacement chain of a post-dated cheque",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("cheque id must be a number: %w", err)
		}
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		chain, err := rt.replacements.TraceChain(ctx, id)
		if err != nil {
			return fmt.Errorf("tracing cheque %d: %w", id, err)
		}
		for i, c := range chain {
			marker := ""
			if i == len(chain)-1 {
				marker = "  <- active"
			}
			fmt.Printf("%d. #%d  %-12s %12s  %s  %s%s\n",
				i+1, c.ID, c.ChequeNumber, c.Amount.StringFixed(2), c.ChequeDate.Format("2006-01-02"), c.Status, marker)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
}
