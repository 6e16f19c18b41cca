package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and register the bootstrap admin key",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The migration module runs during app construction.
		err := runOnce(cmd.Context(), func(context.Context) error { return nil }, infrastructure())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
