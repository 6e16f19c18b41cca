package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/directory/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and run scheduler jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduler jobs in run order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(cmd.Context(), func(_ context.Context, s *scheduler.Scheduler) error {
			for _, name := range s.JobNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		})
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run [job]",
	Short: "Run one job, or every enabled job when no name is given",
	Long: `Runs scheduler jobs once and exits. Useful from an external cron.

Jobs: payment_reminders, expired_payments, waitlist_offer_expiry,
notification_dispatch, saturation_export`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(cmd.Context(), func(ctx context.Context, s *scheduler.Scheduler) error {
			if len(args) == 0 {
				return s.RunOnce(ctx)
			}
			return s.RunJob(ctx, args[0])
		})
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRunCmd)
}

func withScheduler(ctx context.Context, fn func(context.Context, *scheduler.Scheduler) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var sched *scheduler.Scheduler
	return runOnce(ctx, func(ctx context.Context) error {
		return fn(ctx, sched)
	},
		infrastructure(),
		domain(),
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		fx.Populate(&sched),
	)
}
