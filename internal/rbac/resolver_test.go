package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/kulupnet/kulupnet/internal/identity"
)

type fakeProvider struct {
	id  *identity.Identity
	err error
}

func (f *fakeProvider) Current(ctx context.Context) (*identity.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.id == nil {
		return nil, identity.ErrUnauthenticated
	}
	return f.id, nil
}

func (f *fakeProvider) SignOut(ctx context.Context, everywhere bool) error { return nil }

func member(id int64, confirmed bool) *identity.Identity {
	return &identity.Identity{ID: id, Email: "uye@kulupnet.local", EmailConfirmed: confirmed}
}

func TestResolveAnonymous(t *testing.T) {
	store := &fakeStore{}
	resolver := NewResolver(&fakeProvider{}, store, NewMappingCache(store, nil, nil), nil)

	sess, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("anonymous visitors are a session, not an error: %v", err)
	}
	if sess == nil || sess.Authenticated() {
		t.Fatalf("expected anonymous session")
	}
	if sess.HasPermission(PermNews) {
		t.Fatalf("anonymous session must hold no permissions")
	}
}

func TestResolveUnionsPermissionsAcrossRoles(t *testing.T) {
	store := &fakeStore{
		pairs: []RolePermission{
			{Role: "dergi_ekibi", Permission: "magazines"},
			{Role: "dergi_ekibi", Permission: "news"},
			{Role: "etkinlik_ekibi", Permission: "events"},
			{Role: "etkinlik_ekibi", Permission: "news"},
		},
		assignments: map[int64][]Assignment{
			7: {
				{Role: "dergi_ekibi", Approved: true},
				{Role: "etkinlik_ekibi", Approved: true},
				{Role: "baskan", Approved: false}, // pending, contributes nothing
			},
		},
	}
	resolver := NewResolver(&fakeProvider{id: member(7, true)}, store, NewMappingCache(store, nil, nil), nil)

	sess, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, perm := range []Permission{PermMagazines, PermNews, PermEvents} {
		if !sess.HasPermission(perm) {
			t.Fatalf("expected union to include %s", perm)
		}
	}
	if sess.HasPermission(PermUsers) {
		t.Fatalf("union must not invent permissions")
	}
	if sess.IsAdmin() {
		t.Fatalf("pending admin assignment must not count")
	}
	if len(sess.Roles) != 2 {
		t.Fatalf("expected 2 approved roles, got %v", sess.Roles)
	}
}

func TestResolveErrorIsNotAnonymous(t *testing.T) {
	store := &fakeStore{}
	resolver := NewResolver(&fakeProvider{err: errors.New("identity store down")}, store, NewMappingCache(store, nil, nil), nil)

	sess, err := resolver.Resolve(context.Background())
	if err == nil {
		t.Fatalf("expected resolution error")
	}
	if sess != nil {
		t.Fatalf("failed resolution must not produce a session")
	}
}

func TestResolveRoleLookupError(t *testing.T) {
	store := &fakeStore{assignErr: errors.New("db down")}
	resolver := NewResolver(&fakeProvider{id: member(7, true)}, store, NewMappingCache(store, nil, nil), nil)

	if _, err := resolver.Resolve(context.Background()); err == nil {
		t.Fatalf("expected role lookup error to surface")
	}
}

func TestResolverCachesRolesUntilInvalidated(t *testing.T) {
	store := &fakeStore{
		assignments: map[int64][]Assignment{
			7: {{Role: "editor", Approved: true}},
		},
	}
	resolver := NewResolver(&fakeProvider{id: member(7, true)}, store, NewMappingCache(store, nil, nil), nil)

	ctx := context.Background()
	if _, err := resolver.Resolve(ctx); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := resolver.Resolve(ctx); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if store.assignCalls != 1 {
		t.Fatalf("expected cached role lookup, store saw %d calls", store.assignCalls)
	}

	resolver.Invalidate(7)
	if _, err := resolver.Resolve(ctx); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if store.assignCalls != 2 {
		t.Fatalf("expected fresh lookup after invalidation, store saw %d calls", store.assignCalls)
	}
}
