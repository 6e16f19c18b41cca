package email

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/directory/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	switch cfg.Notify.Provider {
	case config.ProviderSMTP:
		return NewSMTP(Config{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
			From:     cfg.Notify.FromEmail,
		}), nil
	case config.ProviderSES:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return NewSESFromRegion(ctx, cfg.Notify.AWSRegion, cfg.Notify.FromEmail)
	case config.ProviderLog, "":
		return NewLogProvider(log), nil
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.Notify.Provider)
	}
}
