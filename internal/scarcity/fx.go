package scarcity

import (
	"github.com/smallbiznis/directory/internal/scarcity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scarcity.service",
	fx.Provide(service.New),
)
