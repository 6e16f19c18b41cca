package listing

import (
	"github.com/smallbiznis/directory/internal/listing/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("listing.repository",
	fx.Provide(repository.Provide),
)
