package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kulupnet/kulupnet/internal/shared"
)

// PGProvider resolves identities from the session cookie and the users table.
type PGProvider struct {
	pool     *pgxpool.Pool
	sessions *shared.SessionManager
	logger   *slog.Logger
}

// NewPGProvider constructs a PGProvider.
func NewPGProvider(pool *pgxpool.Pool, sessions *shared.SessionManager, logger *slog.Logger) *PGProvider {
	return &PGProvider{pool: pool, sessions: sessions, logger: logger}
}

// Current looks up the user referenced by the request session.
func (p *PGProvider) Current(ctx context.Context) (*Identity, error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("identity: malformed user id in session", slog.String("value", raw))
		}
		return nil, ErrUnauthenticated
	}

	var (
		id        Identity
		isActive  bool
	)
	err = p.pool.QueryRow(ctx,
		`SELECT id, email, email_confirmed, is_active FROM users WHERE id = $1`,
		userID,
	).Scan(&id.ID, &id.Email, &id.EmailConfirmed, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("identity: fetch user: %w", err)
	}
	if !isActive {
		return nil, ErrUnauthenticated
	}
	return &id, nil
}

// SignOut destroys the current session. With everywhere set, every stored
// session of the same user is revoked as well.
func (p *PGProvider) SignOut(ctx context.Context, everywhere bool) error {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return nil
	}

	if everywhere {
		raw := strings.TrimSpace(sess.User())
		if userID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if err := p.revokeAll(ctx, userID); err != nil {
				return err
			}
		}
	} else {
		if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sess.ID); err != nil {
			return fmt.Errorf("identity: delete session record: %w", err)
		}
	}

	p.sessions.Destroy(sess)
	return nil
}

func (p *PGProvider) revokeAll(ctx context.Context, userID int64) error {
	rows, err := p.pool.Query(ctx, `SELECT id FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("identity: list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := p.sessions.Revoke(ctx, id); err != nil && p.logger != nil {
			p.logger.Warn("identity: revoke session", slog.String("session_id", id), slog.Any("error", err))
		}
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("identity: delete session records: %w", err)
	}
	return nil
}

var _ Provider = (*PGProvider)(nil)
