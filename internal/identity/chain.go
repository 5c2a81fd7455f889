package identity

import (
	"context"
	"errors"
)

// Chain tries each provider in order until one authenticates the request.
// The session-backed provider goes first so a browser cookie wins over a
// stray Authorization header.
type Chain struct {
	providers []Provider
}

// NewChain composes providers into a single Provider.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Current returns the first identity a provider vouches for. Anything
// other than ErrUnauthenticated stops the walk.
func (c *Chain) Current(ctx context.Context) (*Identity, error) {
	for _, p := range c.providers {
		id, err := p.Current(ctx)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
	}
	return nil, ErrUnauthenticated
}

// SignOut fans out to every provider. Token-based providers treat it as a
// no-op; the session-backed one destroys the cookie session.
func (c *Chain) SignOut(ctx context.Context, everywhere bool) error {
	var first error
	for _, p := range c.providers {
		if err := p.SignOut(ctx, everywhere); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Provider = (*Chain)(nil)
