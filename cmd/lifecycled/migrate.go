package main

import (
	"fmt"

	idb "property_lifecycle_engine/internal/infra/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := idb.NewPostgresConnection(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := idb.Migrate(cmd.Context(), db)
		if err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		if !res.Changed {
			fmt.Printf("Schema is up to date at version %d\n", res.To)
			return nil
		}
		fmt.Printf("Migrated schema from version %d to %d\n", res.From, res.To)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
