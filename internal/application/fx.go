package application

import (
	"github.com/smallbiznis/directory/internal/application/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("application.repository",
	fx.Provide(repository.Provide),
)
