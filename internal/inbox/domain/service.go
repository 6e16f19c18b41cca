package domain

import (
	"context"
	"errors"
)

// FailurePolicy decides what BuildInbox does when a source query fails.
type FailurePolicy string

const (
	// PolicyPartialResult logs the failed source and returns the others.
	PolicyPartialResult FailurePolicy = "partial_result"
	// PolicyFailFast aborts the whole aggregation.
	PolicyFailFast FailurePolicy = "fail_fast"
)

type Service interface {
	BuildInbox(ctx context.Context) (*Inbox, error)
	ApplyAction(ctx context.Context, req ActionRequest) error
}

// ActionRequest is an operator command. Application actions address the
// application by ItemID; listing actions address the listing by BusinessID.
type ActionRequest struct {
	ItemID     string `json:"itemId"`
	BusinessID string `json:"businessId"`
	Action     string `json:"action"`
	Kind       string `json:"type"`
	Actor      string `json:"-"`
}

var (
	ErrInvalidAction     = errors.New("invalid_action")
	ErrInvalidKind       = errors.New("invalid_kind")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
)
