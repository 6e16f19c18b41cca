package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Notification is a request to tell a business owner something. Delivery is
// asynchronous; Notify only records the intent.
type Notification struct {
	Kind       Kind
	BusinessID snowflake.ID
	Channel    Channel
	Recipient  string
	Payload    map[string]any
	// DedupeKey suppresses repeats of the same notification, e.g. one
	// reminder per listing per day bucket.
	DedupeKey string
}

//go:generate mockgen -destination=mock/notifier.go -package=mock github.com/smallbiznis/directory/internal/notification/domain Notifier
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type DispatchResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Retried int `json:"retried"`
}

type Dispatcher interface {
	DispatchPending(ctx context.Context) (DispatchResult, error)
}

var (
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrInvalidChannel  = errors.New("invalid_channel")
	ErrMissingProvider = errors.New("missing_provider")
)
