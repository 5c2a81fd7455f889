package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kulupnet/kulupnet/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpsertExternal(ctx context.Context, email string, emailConfirmed bool) (*User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, email_confirmed, is_active, created_at, updated_at
		 FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.EmailConfirmed, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpsertExternal creates or refreshes an issuer-provisioned account. The
// empty password hash never matches a bcrypt comparison, and a confirmed
// email is never downgraded by a later unconfirmed login.
func (r *PGRepository) UpsertExternal(ctx context.Context, email string, emailConfirmed bool) (*User, error) {
	now := time.Now().UTC()
	var user User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, email_confirmed, is_active, created_at, updated_at)
		 VALUES ($1, '', $2, TRUE, $3, $3)
		 ON CONFLICT (email) DO UPDATE
		 SET email_confirmed = users.email_confirmed OR EXCLUDED.email_confirmed, updated_at = EXCLUDED.updated_at
		 RETURNING id, email, password_hash, email_confirmed, is_active, created_at, updated_at`,
		email, emailConfirmed, now,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.EmailConfirmed, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateSession persists a new login session in the database for auditing
// and for the sign-out-everywhere path.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		id, userID, now, expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
