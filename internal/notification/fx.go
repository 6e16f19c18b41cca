package notification

import (
	"github.com/smallbiznis/directory/internal/notification/repository"
	"github.com/smallbiznis/directory/internal/notification/service"
	"github.com/smallbiznis/directory/internal/providers/email"
	"github.com/smallbiznis/directory/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	email.Module,
	sms.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.NewNotifier),
	fx.Provide(service.NewDispatcher),
)
