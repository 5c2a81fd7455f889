// Package assignments manages the review workflow for user role
// assignments. A role grants nothing until an administrator approves it.
package assignments

import (
	"time"

	"github.com/kulupnet/kulupnet/internal/rbac"
)

// PendingAssignment is a requested role awaiting review.
type PendingAssignment struct {
	UserID    int64
	Email     string
	Role      rbac.Role
	CreatedAt time.Time
}

// RoleLabel returns the display name for the requested role.
func (p PendingAssignment) RoleLabel() string {
	return rbac.RoleLabel(p.Role)
}
