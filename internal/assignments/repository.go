package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
)

const uniqueViolation = "23505"

// ErrAlreadyAssigned indicates the user already holds the role.
var ErrAlreadyAssigned = errors.New("assignments: role already assigned")

// Repository provides PostgreSQL backed persistence for role assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPending returns every unapproved assignment with the requester's email.
func (r *Repository) ListPending(ctx context.Context) ([]PendingAssignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ur.user_id, u.email, ur.role, ur.created_at
		 FROM user_roles ur
		 JOIN users u ON u.id = ur.user_id
		 WHERE NOT ur.approved
		 ORDER BY ur.created_at`)
	if err != nil {
		return nil, fmt.Errorf("assignments: list pending: %w", err)
	}
	defer rows.Close()

	var pending []PendingAssignment
	for rows.Next() {
		var p PendingAssignment
		var role string
		if err := rows.Scan(&p.UserID, &p.Email, &role, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Role = rbac.Role(role)
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pending, nil
}

// Request records a new unapproved assignment.
func (r *Repository) Request(ctx context.Context, userID int64, role rbac.Role) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role, approved) VALUES ($1, $2, FALSE)`,
		userID, string(role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyAssigned
		}
		return fmt.Errorf("assignments: request role: %w", err)
	}
	return nil
}

// Approve marks an assignment as approved.
func (r *Repository) Approve(ctx context.Context, userID int64, role rbac.Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_roles SET approved = TRUE WHERE user_id = $1 AND role = $2`,
		userID, string(role))
	if err != nil {
		return fmt.Errorf("assignments: approve role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Revoke removes an assignment entirely, approved or not.
func (r *Repository) Revoke(ctx context.Context, userID int64, role rbac.Role) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role = $2`,
		userID, string(role))
	if err != nil {
		return fmt.Errorf("assignments: revoke role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// EmailOf resolves a user's address for the approval notification.
func (r *Repository) EmailOf(ctx context.Context, userID int64) (string, error) {
	var email string
	if err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email); err != nil {
		return "", fmt.Errorf("assignments: lookup email: %w", err)
	}
	return email, nil
}
