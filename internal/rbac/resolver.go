package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kulupnet/kulupnet/internal/identity"
)

// ActorSession is the resolved answer to "who is this and what can they do".
type ActorSession struct {
	Identity    *identity.Identity
	Roles       []Role
	permissions PermissionSet
}

// Authenticated reports whether an identity is attached.
func (s *ActorSession) Authenticated() bool {
	return s != nil && s.Identity != nil
}

// EmailConfirmed reports whether the actor verified their address.
func (s *ActorSession) EmailConfirmed() bool {
	return s.Authenticated() && s.Identity.EmailConfirmed
}

// Approved reports whether the actor holds at least one approved role.
func (s *ActorSession) Approved() bool {
	return s != nil && len(s.Roles) > 0
}

// HasPermission is a membership test against the effective permission set.
// Total: a nil session, anonymous actor or unloaded mapping yields false,
// never an error.
func (s *ActorSession) HasPermission(p Permission) bool {
	if s == nil {
		return false
	}
	return s.permissions.Has(NormalizePermission(string(p)))
}

// HasRole reports whether the actor holds the given approved role.
func (s *ActorSession) HasRole(role Role) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor holds a role from the administrative
// allow-list.
func (s *ActorSession) IsAdmin() bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if IsAdminRole(r) {
			return true
		}
	}
	return false
}

// Permissions returns the effective set in lexical order.
func (s *ActorSession) Permissions() []Permission {
	if s == nil {
		return nil
	}
	return s.permissions.Sorted()
}

const (
	roleCacheSize = 512
	roleCacheTTL  = 30 * time.Second
)

// Resolver computes the actor session for a request: identity from the
// provider, approved roles from the store, effective permissions as the
// union of the shared mapping's sets for those roles.
type Resolver struct {
	provider    identity.Provider
	assignments AssignmentSource
	mappings    *MappingCache
	logger      *slog.Logger
	roleCache   *lru.LRU[int64, []Role]
}

// AssignmentSource lists a user's role assignments. Store satisfies it.
type AssignmentSource interface {
	ListAssignments(ctx context.Context, userID int64) ([]Assignment, error)
}

// NewResolver constructs a Resolver.
func NewResolver(provider identity.Provider, assignments AssignmentSource, mappings *MappingCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		provider:    provider,
		assignments: assignments,
		mappings:    mappings,
		logger:      logger,
		roleCache:   lru.NewLRU[int64, []Role](roleCacheSize, nil, roleCacheTTL),
	}
}

// Resolve computes the current actor session. An absent identity yields an
// anonymous session, not an error; errors mean the resolution itself failed
// and the caller should treat the request as still being verified.
func (r *Resolver) Resolve(ctx context.Context) (*ActorSession, error) {
	id, err := r.provider.Current(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			return &ActorSession{}, nil
		}
		return nil, fmt.Errorf("rbac: resolve identity: %w", err)
	}

	roles, err := r.approvedRoles(ctx, id.ID)
	if err != nil {
		return nil, fmt.Errorf("rbac: resolve roles: %w", err)
	}

	mapping := r.mappings.Mapping(ctx)
	effective := make(PermissionSet)
	for _, role := range roles {
		effective.Merge(mapping.PermissionsFor(role))
	}

	return &ActorSession{Identity: id, Roles: roles, permissions: effective}, nil
}

// Invalidate drops the cached role lookup for a user. Called after an
// assignment is approved or revoked so the next resolution sees the change.
func (r *Resolver) Invalidate(userID int64) {
	r.roleCache.Remove(userID)
}

func (r *Resolver) approvedRoles(ctx context.Context, userID int64) ([]Role, error) {
	if roles, ok := r.roleCache.Get(userID); ok {
		return roles, nil
	}
	assignments, err := r.assignments.ListAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles := ApprovedRoles(assignments)
	r.roleCache.Add(userID, roles)
	return roles, nil
}
