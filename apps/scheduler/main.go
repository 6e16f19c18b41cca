package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/application"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/cloudmetrics"
	"github.com/smallbiznis/directory/internal/config"
	"github.com/smallbiznis/directory/internal/listing"
	"github.com/smallbiznis/directory/internal/notification"
	"github.com/smallbiznis/directory/internal/observability"
	"github.com/smallbiznis/directory/internal/ratelimit"
	"github.com/smallbiznis/directory/internal/scarcity"
	"github.com/smallbiznis/directory/internal/scheduler"
	"github.com/smallbiznis/directory/internal/waitlist"
	"github.com/smallbiznis/directory/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		listing.Module,
		application.Module,
		notification.Module,
		waitlist.Module,
		scarcity.Module,
		ratelimit.Module,
		cloudmetrics.Module,

		// No server module!
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		// Deploying this process is the opt-in; SCHEDULER_ENABLED is ignored.
		fx.Invoke(scheduler.Start),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
