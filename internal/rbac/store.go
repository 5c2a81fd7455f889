package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kulupnet/kulupnet/internal/platform/db"
)

// Store is the role-permission table interface of the backing store.
type Store interface {
	// ListRolePermissions returns every stored (role, permission) pair.
	// The catalog is small; no pagination.
	ListRolePermissions(ctx context.Context) ([]RolePermission, error)
	// ReplaceRolePermissions swaps the entire stored mapping for the given
	// pairs in one transaction.
	ReplaceRolePermissions(ctx context.Context, pairs []RolePermission) error
	// ListAssignments returns every role assignment of a user, approved or
	// not.
	ListAssignments(ctx context.Context, userID int64) ([]Assignment, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ListRolePermissions reads all stored pairs.
func (s *PGStore) ListRolePermissions(ctx context.Context) ([]RolePermission, error) {
	rows, err := s.pool.Query(ctx, `SELECT role, permission FROM role_permissions ORDER BY role, permission`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list role permissions: %w", err)
	}
	defer rows.Close()

	var pairs []RolePermission
	for rows.Next() {
		var role, perm string
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, err
		}
		pairs = append(pairs, RolePermission{Role: Role(role), Permission: Permission(perm)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// ReplaceRolePermissions rewrites the whole table inside one transaction, so
// concurrent readers see either the old mapping or the new one, never the
// empty window in between.
func (s *PGStore) ReplaceRolePermissions(ctx context.Context, pairs []RolePermission) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions`); err != nil {
			return fmt.Errorf("rbac: clear role permissions: %w", err)
		}
		if len(pairs) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, pair := range pairs {
			batch.Queue(
				`INSERT INTO role_permissions (role, permission) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				string(pair.Role), string(pair.Permission),
			)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range pairs {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("rbac: insert role permission: %w", err)
			}
		}
		return nil
	})
}

// ListAssignments reads all role assignments for a user.
func (s *PGStore) ListAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, approved, created_at FROM user_roles WHERE user_id = $1 ORDER BY role`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("rbac: list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		var role string
		if err := rows.Scan(&role, &a.Approved, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

var _ Store = (*PGStore)(nil)
