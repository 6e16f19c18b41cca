package inbox

import (
	"github.com/smallbiznis/directory/internal/inbox/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inbox.service",
	fx.Provide(service.New),
)
