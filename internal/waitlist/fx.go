package waitlist

import (
	"github.com/smallbiznis/directory/internal/waitlist/repository"
	"github.com/smallbiznis/directory/internal/waitlist/service"
	"go.uber.org/fx"
)

var Module = fx.Module("waitlist.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
