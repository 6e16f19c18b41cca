package authorization

import (
	"context"
	"errors"
)

// Service checks operator capabilities. Actor is the API key subject and
// role the key's operator role.
type Service interface {
	Authorize(ctx context.Context, actor, role, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
