package apikey

import (
	"github.com/smallbiznis/directory/internal/apikey/repository"
	"github.com/smallbiznis/directory/internal/apikey/service"
	"github.com/smallbiznis/directory/internal/cache"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewPrincipalCache),
	fx.Provide(service.New),
)
