package identity

import (
	"context"
	"errors"
	"testing"

	_ "github.com/kulupnet/kulupnet/testing"
)

type fixedProvider struct {
	id  *Identity
	err error
}

func (p fixedProvider) Current(ctx context.Context) (*Identity, error) {
	return p.id, p.err
}

func (p fixedProvider) SignOut(ctx context.Context, everywhere bool) error { return nil }

func TestChainPrefersFirstProvider(t *testing.T) {
	session := fixedProvider{id: &Identity{ID: 1, Email: "uye@kulupnet.local"}}
	bearer := fixedProvider{id: &Identity{ID: 2, Email: "api@kulupnet.local"}}

	id, err := NewChain(session, bearer).Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if id.ID != 1 {
		t.Fatalf("the session-backed provider must win, got id %d", id.ID)
	}
}

func TestChainFallsThroughUnauthenticated(t *testing.T) {
	anonymous := fixedProvider{err: ErrUnauthenticated}
	bearer := fixedProvider{id: &Identity{ID: 2, Email: "api@kulupnet.local"}}

	id, err := NewChain(anonymous, bearer).Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if id.ID != 2 {
		t.Fatalf("expected the bearer fallback, got id %d", id.ID)
	}

	_, err = NewChain(anonymous, anonymous).Current(context.Background())
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated when no provider matches, got %v", err)
	}
}

func TestChainStopsOnRealError(t *testing.T) {
	boom := errors.New("store down")
	failing := fixedProvider{err: boom}
	bearer := fixedProvider{id: &Identity{ID: 2}}

	_, err := NewChain(failing, bearer).Current(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("a provider failure must surface, got %v", err)
	}
}

func TestSubjectIDDerivation(t *testing.T) {
	if got := subjectID("42"); got != 42 {
		t.Fatalf("numeric subjects keep their value, got %d", got)
	}
	opaque := subjectID("auth0|abcdef")
	if opaque <= 0 {
		t.Fatalf("opaque subjects must hash to a positive id, got %d", opaque)
	}
	if opaque != subjectID("auth0|abcdef") {
		t.Fatalf("subject derivation must be stable")
	}
	if opaque == subjectID("auth0|abcdeg") {
		t.Fatalf("distinct subjects must not collide on neighbours")
	}
}
