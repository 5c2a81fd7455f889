package assignments

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
)

// MemberHandler exposes the self-service side of the review workflow:
// a signed-in member asks for a role, administrators decide later.
type MemberHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewMemberHandler constructs the member-facing handler.
func NewMemberHandler(logger *slog.Logger, service *Service) *MemberHandler {
	return &MemberHandler{logger: logger, service: service}
}

// MountRoutes registers the member routes. Authentication comes from the
// surrounding guard; no approved role is required to ask for one.
func (h *MemberHandler) MountRoutes(r chi.Router) {
	r.Post("/request", h.handleRequest)
}

func (h *MemberHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actor := rbac.ActorFromContext(r.Context())
	role := rbac.NormalizeRole(r.PostFormValue("role"))

	flash := shared.FlashMessage{Kind: "success", Message: "Görev isteğiniz alındı, onay bekliyor"}
	if err := h.service.Request(r.Context(), actor, role); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyAssigned):
			flash = shared.FlashMessage{Kind: "info", Message: "Bu görev için isteğiniz zaten kayıtlı"}
		case errors.Is(err, shared.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		default:
			h.logger.Error("role request", slog.Any("error", err))
			flash = shared.FlashMessage{Kind: "error", Message: "Görev isteği kaydedilemedi"}
		}
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(flash)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
