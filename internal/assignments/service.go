package assignments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
)

// RepositoryPort defines data access for the review workflow.
type RepositoryPort interface {
	ListPending(ctx context.Context) ([]PendingAssignment, error)
	Request(ctx context.Context, userID int64, role rbac.Role) error
	Approve(ctx context.Context, userID int64, role rbac.Role) error
	Revoke(ctx context.Context, userID int64, role rbac.Role) error
	EmailOf(ctx context.Context, userID int64) (string, error)
}

// Notifier delivers the approval notification, typically through the job
// queue.
type Notifier interface {
	NotifyRoleApproved(ctx context.Context, email string, roleLabel string) error
}

// RoleCacheInvalidator drops a user's cached role lookup after a change.
// Satisfied by rbac.Resolver.
type RoleCacheInvalidator interface {
	Invalidate(userID int64)
}

// Service handles assignment review decisions.
type Service struct {
	repo     RepositoryPort
	resolver RoleCacheInvalidator
	notifier Notifier
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, resolver RoleCacheInvalidator, notifier Notifier, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, notifier: notifier, audit: audit, logger: logger}
}

// ListPending returns assignments awaiting review. Admin gate applies.
func (s *Service) ListPending(ctx context.Context, actor *rbac.ActorSession) ([]PendingAssignment, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListPending(ctx)
}

// Request records a role request for later review. Any authenticated actor
// may request a role for themselves.
func (s *Service) Request(ctx context.Context, actor *rbac.ActorSession, role rbac.Role) error {
	if !actor.Authenticated() {
		return shared.ErrForbidden
	}
	role = rbac.NormalizeRole(string(role))
	if role == "" {
		return fmt.Errorf("assignments: role required")
	}
	return s.repo.Request(ctx, actor.Identity.ID, role)
}

// Approve activates an assignment. Only administrators decide; the user's
// cached role lookup is invalidated so the grant is visible on their next
// request, and a notification is queued.
func (s *Service) Approve(ctx context.Context, actor *rbac.ActorSession, userID int64, role rbac.Role) error {
	if !actor.IsAdmin() {
		return shared.ErrForbidden
	}
	role = rbac.NormalizeRole(string(role))
	if err := s.repo.Approve(ctx, userID, role); err != nil {
		return err
	}
	if s.resolver != nil {
		s.resolver.Invalidate(userID)
	}
	s.record(ctx, actor, "APPROVE", userID, role)

	if s.notifier != nil {
		email, err := s.repo.EmailOf(ctx, userID)
		if err == nil {
			err = s.notifier.NotifyRoleApproved(ctx, email, rbac.RoleLabel(role))
		}
		if err != nil && s.logger != nil {
			s.logger.Warn("assignments: queue approval notification", slog.Any("error", err))
		}
	}
	return nil
}

// Revoke removes an assignment. Only administrators decide.
func (s *Service) Revoke(ctx context.Context, actor *rbac.ActorSession, userID int64, role rbac.Role) error {
	if !actor.IsAdmin() {
		return shared.ErrForbidden
	}
	role = rbac.NormalizeRole(string(role))
	if err := s.repo.Revoke(ctx, userID, role); err != nil {
		return err
	}
	if s.resolver != nil {
		s.resolver.Invalidate(userID)
	}
	s.record(ctx, actor, "REVOKE", userID, role)
	return nil
}

func (s *Service) record(ctx context.Context, actor *rbac.ActorSession, action string, userID int64, role rbac.Role) {
	if s.audit == nil || actor.Identity == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.Identity.ID,
		Action:   action,
		Entity:   "user_roles",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     map[string]any{"role": string(role)},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("assignments: audit decision", slog.Any("error", err))
	}
}
