package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/donorledger/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables and indexes if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := database.Migrate(cmd.Context(), e.db); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")

			return nil
		},
	}
}
