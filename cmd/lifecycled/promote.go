package main

import (
	"fmt"
	"sort"

	"property_lifecycle_engine/internal/app"
	"property_lifecycle_engine/internal/domain/lifecycle"

	"github.com/spf13/cobra"
)

var (
	promoteSubject string
	promoteRule    string
	promoteAsOf    string
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Apply the transition rules once",
	Long: `Apply one rule (--subject and --rule) or the whole rule table as of a date.
Promotion is idempotent: running it twice for the same date moves nothing the second time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (promoteSubject == "") != (promoteRule == "") {
			return fmt.Errorf("--subject and --rule must be given together")
		}
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		asOf, err := rt.parseAsOf(promoteAsOf)
		if err != nil {
			return err
		}

		if promoteRule != "" {
			res, err := rt.promoter.Promote(ctx, lifecycle.SubjectType(promoteSubject), promoteRule, asOf)
			if err != nil {
				return fmt.Errorf("promoting %s: %w", promoteRule, err)
			}
			printResult(res)
			return nil
		}

		summary, err := rt.promoter.PromoteAll(ctx, asOf)
		if err != nil {
			return fmt.Errorf("promoting: %w", err)
		}
		fmt.Printf("As of %s\n", asOf.Format("2006-01-02"))
		for _, res := range summary.Results {
			printResult(res)
		}
		if len(summary.Failed) > 0 {
			ids := make([]string, 0, len(summary.Failed))
			for id := range summary.Failed {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			fmt.Println("Failed rules:")
			for _, id := range ids {
				fmt.Printf("  - %s: %v\n", id, summary.Failed[id])
			}
			return fmt.Errorf("%d rule(s) failed", len(summary.Failed))
		}
		return nil
	},
}

func printResult(res app.PromotionResult) {
	fmt.Printf("  %-28s promoted %d, enqueued %d", res.RuleID, res.Promoted, res.Enqueued)
	if res.EnqueueFailed > 0 {
		fmt.Printf(", enqueue failed %d", res.EnqueueFailed)
	}
	fmt.Println()
}

func init() {
	promoteCmd.Flags().StringVar(&promoteSubject, "subject", "", "Subject type of the rule (invoice, cheque, compliance, document, vendor_document)")
	promoteCmd.Flags().StringVar(&promoteRule, "rule", "", "Rule id, e.g. document.notice-30")
	promoteCmd.Flags().StringVar(&promoteAsOf, "as-of", "", "Promotion date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(promoteCmd)
}
