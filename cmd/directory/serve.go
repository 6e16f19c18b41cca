package main

import (
	"github.com/smallbiznis/directory/internal/scheduler"
	"github.com/smallbiznis/directory/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// serveCmd runs the HTTP server and, when SCHEDULER_ENABLED is set, the
// lifecycle scheduler in the same process.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			infrastructure(),
			domain(),
			server.Module,
			scheduler.Module,
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}
