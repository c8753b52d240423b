package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks whether the profile may perform action on object.
	// The profile's role grouping is synced from isAdmin before enforcing.
	Authorize(ctx context.Context, profileID string, isAdmin bool, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
