package providers

import (
	"github.com/smallbiznis/directory/internal/providers/pdf"
	"go.uber.org/fx"
)

// Module carries report providers. Notification delivery providers are
// registered by the notification module.
var Module = fx.Module("providers",
	pdf.Module,
)
