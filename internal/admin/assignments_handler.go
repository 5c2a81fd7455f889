package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kulupnet/kulupnet/internal/assignments"
	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
	"github.com/kulupnet/kulupnet/internal/view"
)

// AssignmentsHandler serves the role assignment review queue.
type AssignmentsHandler struct {
	logger    *slog.Logger
	service   *assignments.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     *rbac.Guard
}

// NewAssignmentsHandler builds an AssignmentsHandler instance.
func NewAssignmentsHandler(logger *slog.Logger, service *assignments.Service, templates *view.Engine, csrf *shared.CSRFManager, guard *rbac.Guard) *AssignmentsHandler {
	return &AssignmentsHandler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers assignment review routes.
func (h *AssignmentsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.PermUsers, rbac.PermRoles))
		r.Get("/", h.showPending)
		r.Post("/approve", h.approve)
		r.Post("/revoke", h.revoke)
	})
}

type assignmentsPageData struct {
	Pending []assignments.PendingAssignment
	Errors  map[string]string
}

func (h *AssignmentsHandler) showPending(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	pending, err := h.service.ListPending(r.Context(), actor)
	if err != nil {
		h.renderFailure(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, assignmentsPageData{Pending: pending})
}

func (h *AssignmentsHandler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve, "Görev onaylandı")
}

func (h *AssignmentsHandler) revoke(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Revoke, "Görev kaldırıldı")
}

func (h *AssignmentsHandler) decide(w http.ResponseWriter, r *http.Request, decision func(context.Context, *rbac.ActorSession, int64, rbac.Role) error, flashMessage string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(r.PostFormValue("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "geçersiz kullanıcı", http.StatusBadRequest)
		return
	}
	role := rbac.NormalizeRole(r.PostFormValue("role"))
	if role == "" {
		http.Error(w, "geçersiz görev", http.StatusBadRequest)
		return
	}

	actor := rbac.ActorFromContext(r.Context())
	if err := decision(r.Context(), actor, userID, role); err != nil {
		h.renderFailure(w, r, err)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: flashMessage})
	}
	http.Redirect(w, r, "/admin/assignments", http.StatusSeeOther)
}

func (h *AssignmentsHandler) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "İşlem tamamlanamadı."
	switch {
	case errors.Is(err, shared.ErrForbidden):
		status = http.StatusForbidden
		message = "Görev kararlarını yalnızca yönetim verebilir."
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
		message = "Görev kaydı bulunamadı."
	default:
		h.logger.Error("assignment decision", slog.Any("error", err))
	}
	h.render(w, r, status, assignmentsPageData{Errors: map[string]string{"general": message}})
}

func (h *AssignmentsHandler) render(w http.ResponseWriter, r *http.Request, status int, data assignmentsPageData) {
	if data.Pending == nil && data.Errors == nil {
		data.Pending = []assignments.PendingAssignment{}
	}
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Görev Onayları", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, "pages/assignments.html", viewData); err != nil {
		h.logger.Error("render assignments", slog.Any("error", err))
	}
}
