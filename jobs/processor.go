package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Processor holds the dependencies task handlers need.
type Processor struct {
	Mailer Mailer
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// HandleRoleApprovedEmail processes TaskTypeRoleApprovedEmail tasks.
func (p *Processor) HandleRoleApprovedEmail(ctx context.Context, t *asynq.Task) error {
	var payload RoleApprovedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if p.Mailer == nil {
		p.Logger.Warn("mailer not configured, dropping approval mail", slog.String("to", payload.Email))
		return nil
	}
	subject := fmt.Sprintf("Kulüpnet: %s görevin onaylandı", payload.RoleLabel)
	body := fmt.Sprintf("Merhaba,\n\n%s görevin yönetim tarafından onaylandı. Panele giriş yaptığında yeni yetkilerin aktif olacak.\n\nKulüpnet", payload.RoleLabel)
	if err := p.Mailer.Send(payload.Email, subject, body); err != nil {
		return err
	}
	p.Logger.Info("approval mail sent", slog.String("to", payload.Email), slog.String("role", payload.RoleLabel))
	return nil
}

// HandleSessionPrune processes TaskTypeSessionPrune tasks.
func (p *Processor) HandleSessionPrune(ctx context.Context, t *asynq.Task) error {
	if p.Pool == nil {
		return nil
	}
	tag, err := p.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return fmt.Errorf("jobs: prune sessions: %w", err)
	}
	p.Logger.Info("pruned expired sessions", slog.Int64("removed", tag.RowsAffected()))
	return nil
}
