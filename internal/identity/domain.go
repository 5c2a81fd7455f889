// Package identity exposes the minimal identity-provider interface the
// access-control subsystem consumes. Authentication mechanics (password
// hashing, token issuance) stay behind this boundary.
package identity

import (
	"context"
	"errors"
)

// ErrUnauthenticated indicates no identity is attached to the current request.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Identity describes the authenticated actor for the current session.
type Identity struct {
	ID             int64
	Email          string
	EmailConfirmed bool
}

// Provider answers "who is making this request". Current must be idempotent
// and safe to call repeatedly within one request.
type Provider interface {
	// Current returns the identity for the request context, or
	// ErrUnauthenticated when there is none.
	Current(ctx context.Context) (*Identity, error)
	// SignOut invalidates the current session. With everywhere set it
	// revokes every active session of the same identity.
	SignOut(ctx context.Context, everywhere bool) error
}
