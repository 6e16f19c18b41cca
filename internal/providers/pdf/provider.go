package pdf

import (
	"context"
	"io"

	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// Provider renders operator reports.
type Provider interface {
	GenerateInboxReport(ctx context.Context, inbox *inboxdomain.Inbox) (io.Reader, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateInboxReport(ctx context.Context, inbox *inboxdomain.Inbox) (io.Reader, error) {
	return nil, nil
}
