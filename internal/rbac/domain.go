// Package rbac implements the association's access-control model: the
// role-permission mapping loaded from the store, per-session permission
// resolution, and the route guard protecting the admin panel.
package rbac

import (
	"sort"
	"strings"
	"time"
)

// Role identifies a capability bucket ("baskan", "teknik_ekip"). Roles are
// open strings: new ones arrive through stored data, never a code change.
type Role string

// Permission names a feature area of the panel ("events", "documents").
type Permission string

// NormalizeRole canonicalises a stored role key.
func NormalizeRole(r string) Role {
	return Role(strings.TrimSpace(strings.ToLower(r)))
}

// NormalizePermission canonicalises a stored permission key.
func NormalizePermission(p string) Permission {
	return Permission(strings.TrimSpace(strings.ToLower(p)))
}

// Feature-area permissions of the panel.
const (
	PermNews        Permission = "news"
	PermEvents      Permission = "events"
	PermMagazines   Permission = "magazines"
	PermSponsors    Permission = "sponsors"
	PermInternships Permission = "internships"
	PermSurveys     Permission = "surveys"
	PermProducts    Permission = "products"
	PermTeam        Permission = "team"
	PermDocuments   Permission = "documents"
	PermUsers       Permission = "users"
	PermRoles       Permission = "roles"
	PermSettings    Permission = "settings"
)

// Catalog lists every permission the panel knows about.
func Catalog() []Permission {
	return []Permission{
		PermNews,
		PermEvents,
		PermMagazines,
		PermSponsors,
		PermInternships,
		PermSurveys,
		PermProducts,
		PermTeam,
		PermDocuments,
		PermUsers,
		PermRoles,
		PermSettings,
	}
}

// The two roles allowed to mutate the role-permission mapping. This list is
// closed on purpose; everything else is data-driven.
const (
	RolePresident Role = "baskan"
	RoleTechTeam  Role = "teknik_ekip"
)

// AdminRoles returns the administrative allow-list.
func AdminRoles() []Role {
	return []Role{RolePresident, RoleTechTeam}
}

// IsAdminRole reports whether the role may administer the mapping.
func IsAdminRole(r Role) bool {
	return r == RolePresident || r == RoleTechTeam
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership. Safe on a nil set.
func (s PermissionSet) Has(p Permission) bool {
	if s == nil {
		return false
	}
	_, ok := s[p]
	return ok
}

// Add inserts a permission.
func (s PermissionSet) Add(p Permission) {
	s[p] = struct{}{}
}

// Remove deletes a permission.
func (s PermissionSet) Remove(p Permission) {
	delete(s, p)
}

// Merge unions another set into this one.
func (s PermissionSet) Merge(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RolePermission is one stored (role, permission) pair.
type RolePermission struct {
	Role       Role
	Permission Permission
}

// Mapping associates each role with its granted permission set. A role
// missing from the mapping simply has no permissions; lookups never fail.
type Mapping map[Role]PermissionSet

// MappingFromPairs groups stored pairs by role, collapsing duplicates.
func MappingFromPairs(pairs []RolePermission) Mapping {
	m := make(Mapping)
	for _, pair := range pairs {
		role := NormalizeRole(string(pair.Role))
		perm := NormalizePermission(string(pair.Permission))
		if role == "" || perm == "" {
			continue
		}
		set, ok := m[role]
		if !ok {
			set = make(PermissionSet)
			m[role] = set
		}
		set.Add(perm)
	}
	return m
}

// PermissionsFor returns the set granted to a role; missing roles yield an
// empty set, never an error.
func (m Mapping) PermissionsFor(role Role) PermissionSet {
	if m == nil {
		return nil
	}
	return m[role]
}

// Clone deep-copies the mapping.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for role, set := range m {
		out[role] = set.Clone()
	}
	return out
}

// Roles returns the mapped roles in lexical order.
func (m Mapping) Roles() []Role {
	out := make([]Role, 0, len(m))
	for role := range m {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Pairs flattens the mapping into deterministic (role, permission) pairs.
func (m Mapping) Pairs() []RolePermission {
	var out []RolePermission
	for _, role := range m.Roles() {
		for _, perm := range m[role].Sorted() {
			out = append(out, RolePermission{Role: role, Permission: perm})
		}
	}
	return out
}

// Equal reports whether both mappings grant exactly the same pairs.
func (m Mapping) Equal(other Mapping) bool {
	if len(m) != len(other) {
		return false
	}
	for role, set := range m {
		otherSet, ok := other[role]
		if !ok || len(set) != len(otherSet) {
			return false
		}
		for p := range set {
			if !otherSet.Has(p) {
				return false
			}
		}
	}
	return true
}

// FallbackMapping is the built-in mapping substituted when the store cannot
// be read. It keeps the administrative roles fully capable so a store outage
// can never lock the highest-privilege actors out of the panel.
func FallbackMapping() Mapping {
	m := make(Mapping, 2)
	for _, role := range AdminRoles() {
		m[role] = NewPermissionSet(Catalog()...)
	}
	return m
}

// Assignment links an actor to a role. Only approved assignments grant
// permissions; pending ones exist but contribute nothing.
type Assignment struct {
	Role      Role
	Approved  bool
	CreatedAt time.Time
}

// ApprovedRoles filters assignments down to active role keys.
func ApprovedRoles(assignments []Assignment) []Role {
	var out []Role
	seen := make(map[Role]struct{}, len(assignments))
	for _, a := range assignments {
		if !a.Approved {
			continue
		}
		role := NormalizeRole(string(a.Role))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
