package scheduler

import (
	"context"

	"github.com/smallbiznis/directory/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module runs the lifecycle loop inside the API process when
// SCHEDULER_ENABLED is set. Dedicated scheduler processes call Start
// directly.
var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(startWhenEnabled),
)

func startWhenEnabled(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.Scheduler.Enabled {
		sched.log.Info("scheduler disabled in this process")
		return
	}
	Start(lc, sched)
}

// Start runs RunForever for the lifetime of the fx app. Stop waits for the
// current pass to return or for the stop deadline, whichever comes first.
func Start(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sched.log.Info("scheduler started",
				zap.Duration("interval", sched.cfg.RunInterval),
				zap.Strings("jobs", sched.JobNames()),
			)
			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
