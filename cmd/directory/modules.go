package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/application"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/cloudmetrics"
	"github.com/smallbiznis/directory/internal/config"
	"github.com/smallbiznis/directory/internal/inbox"
	"github.com/smallbiznis/directory/internal/listing"
	"github.com/smallbiznis/directory/internal/migration"
	"github.com/smallbiznis/directory/internal/notification"
	"github.com/smallbiznis/directory/internal/observability"
	"github.com/smallbiznis/directory/internal/ratelimit"
	"github.com/smallbiznis/directory/internal/scarcity"
	"github.com/smallbiznis/directory/internal/waitlist"
	"github.com/smallbiznis/directory/pkg/db"
	"go.uber.org/fx"
)

const oneShotTimeout = 5 * time.Minute

// infrastructure is shared by every command: config, logging, the database
// and schema migrations.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
	)
}

// domain wires the services both the HTTP server and the scheduler use.
func domain() fx.Option {
	return fx.Options(
		listing.Module,
		application.Module,
		notification.Module,
		waitlist.Module,
		scarcity.Module,
		inbox.Module,
		ratelimit.Module,
		cloudmetrics.Module,
	)
}

// runOnce starts an app built from opts, calls fn and stops the app again.
func runOnce(ctx context.Context, fn func(ctx context.Context) error, opts ...fx.Option) error {
	opts = append(opts, fx.NopLogger)
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runCtx, cancelRun := context.WithTimeout(ctx, oneShotTimeout)
	runErr := fn(runCtx)
	cancelRun()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
