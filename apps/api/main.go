package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/application"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	"github.com/smallbiznis/directory/internal/inbox"
	"github.com/smallbiznis/directory/internal/listing"
	"github.com/smallbiznis/directory/internal/migration"
	"github.com/smallbiznis/directory/internal/notification"
	"github.com/smallbiznis/directory/internal/observability"
	"github.com/smallbiznis/directory/internal/ratelimit"
	"github.com/smallbiznis/directory/internal/scarcity"
	"github.com/smallbiznis/directory/internal/server"
	"github.com/smallbiznis/directory/internal/waitlist"
	"github.com/smallbiznis/directory/pkg/db"
	"go.uber.org/fx"
)

// The API process serves HTTP only; lifecycle jobs run in apps/scheduler.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		listing.Module,
		application.Module,
		notification.Module,
		waitlist.Module,
		scarcity.Module,
		inbox.Module,
		ratelimit.Module,

		server.Module,
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
