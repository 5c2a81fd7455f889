package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kulupnet/kulupnet/internal/shared"
)

// ErrNotAdmin rejects matrix mutations from actors outside the
// administrative allow-list. Rendered as an access-denied page, not a crash.
var ErrNotAdmin = errors.New("rbac: administrative role required")

// Draft is the in-memory working copy of the permission matrix an
// administrator edits before saving. Toggles never touch the store.
type Draft struct {
	mapping Mapping
	dirty   bool
}

// NewDraft copies the given mapping into an editable draft.
func NewDraft(m Mapping) *Draft {
	if m == nil {
		m = make(Mapping)
	}
	return &Draft{mapping: m.Clone()}
}

// Toggle flips membership of permission in the role's set.
func (d *Draft) Toggle(role Role, perm Permission) {
	role = NormalizeRole(string(role))
	perm = NormalizePermission(string(perm))
	if role == "" || perm == "" {
		return
	}
	set, ok := d.mapping[role]
	if !ok {
		set = make(PermissionSet)
		d.mapping[role] = set
	}
	if set.Has(perm) {
		set.Remove(perm)
	} else {
		set.Add(perm)
	}
	d.dirty = true
}

// Grant adds permission to the role's set. Idempotent, so repeated form
// values cannot flip a cell back off the way Toggle would.
func (d *Draft) Grant(role Role, perm Permission) {
	role = NormalizeRole(string(role))
	perm = NormalizePermission(string(perm))
	if role == "" || perm == "" {
		return
	}
	set, ok := d.mapping[role]
	if !ok {
		set = make(PermissionSet)
		d.mapping[role] = set
	}
	if set.Has(perm) {
		return
	}
	set.Add(perm)
	d.dirty = true
}

// Granted reports whether the draft currently grants permission to role.
func (d *Draft) Granted(role Role, perm Permission) bool {
	return d.mapping.PermissionsFor(NormalizeRole(string(role))).Has(NormalizePermission(string(perm)))
}

// Dirty reports whether the draft diverged from its source mapping.
func (d *Draft) Dirty() bool {
	return d.dirty
}

// Mapping returns an independent copy of the draft state.
func (d *Draft) Mapping() Mapping {
	return d.mapping.Clone()
}

// Pairs flattens the draft into deterministic (role, permission) pairs.
func (d *Draft) Pairs() []RolePermission {
	return d.mapping.Pairs()
}

// Editor applies matrix drafts to the store. The whole mapping is replaced
// in one save rather than diffed; the catalog is small and full replacement
// avoids reconciling partial failures.
type Editor struct {
	store  Store
	cache  *MappingCache
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewEditor constructs an Editor.
func NewEditor(store Store, cache *MappingCache, audit *shared.AuditLogger, logger *slog.Logger) *Editor {
	return &Editor{store: store, cache: cache, audit: audit, logger: logger}
}

// Save replaces the stored mapping with the draft. Only actors holding an
// administrative role may save; store errors surface raw to the caller so
// the administrator can retry. On success the shared mapping cache reloads,
// so every open view picks up the new grants on its next resolution.
func (e *Editor) Save(ctx context.Context, actor *ActorSession, draft *Draft) error {
	if !actor.IsAdmin() {
		return ErrNotAdmin
	}
	pairs := draft.Pairs()
	if err := e.store.ReplaceRolePermissions(ctx, pairs); err != nil {
		return fmt.Errorf("rbac: save permission matrix: %w", err)
	}

	if e.audit != nil && actor.Identity != nil {
		err := e.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.Identity.ID,
			Action:   "REPLACE",
			Entity:   "role_permissions",
			EntityID: "matrix",
			Meta:     map[string]any{"pairs": len(pairs)},
		})
		if err != nil && e.logger != nil {
			e.logger.Warn("rbac: audit matrix save", slog.Any("error", err))
		}
	}

	if err := e.cache.Reload(ctx); err != nil && e.logger != nil {
		// The save itself succeeded; the stale cache heals on the next
		// reload and the fallback keeps administrators in.
		e.logger.Warn("rbac: reload mapping after save", slog.Any("error", err))
	}
	return nil
}
