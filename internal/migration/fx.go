package migration

import (
	"github.com/smallbiznis/directory/internal/config"
	"github.com/smallbiznis/directory/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if err := Migrate(conn, cfg.DBType); err != nil {
			return err
		}

		created, err := seed.EnsureBootstrapAdminKey(conn, cfg.Bootstrap.AdminAPIKey)
		if err != nil {
			return err
		}
		if created {
			log.Info("bootstrap admin api key registered")
		}
		return nil
	}),
)
