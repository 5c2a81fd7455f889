// Package admin serves the administrative pages of the panel: the
// role-permission matrix and the assignment review queue.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
	"github.com/kulupnet/kulupnet/internal/view"
)

// MatrixHandler manages the permission matrix editor.
type MatrixHandler struct {
	logger    *slog.Logger
	editor    *rbac.Editor
	mappings  *rbac.MappingCache
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     *rbac.Guard
}

// NewMatrixHandler builds a MatrixHandler instance.
func NewMatrixHandler(logger *slog.Logger, editor *rbac.Editor, mappings *rbac.MappingCache, templates *view.Engine, csrf *shared.CSRFManager, guard *rbac.Guard) *MatrixHandler {
	return &MatrixHandler{logger: logger, editor: editor, mappings: mappings, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers matrix routes.
func (h *MatrixHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.PermRoles))
		r.Get("/", h.showMatrix)
		r.Post("/", h.saveMatrix)
	})
}

type matrixCell struct {
	Role       rbac.Role
	Permission rbac.Permission
	Granted    bool
}

type matrixRow struct {
	Role  rbac.Role
	Label string
	Cells []matrixCell
}

type matrixColumn struct {
	Permission rbac.Permission
	Label      string
}

type matrixPageData struct {
	Rows        []matrixRow
	Permissions []matrixColumn
	Errors      map[string]string
}

func (h *MatrixHandler) showMatrix(w http.ResponseWriter, r *http.Request) {
	mapping := h.mappings.Mapping(r.Context())
	// A freshly added role has no grants yet, so it only exists as a
	// query parameter until its first checkbox is saved.
	extra := rbac.NormalizeRole(r.URL.Query().Get("role"))
	h.render(w, r, http.StatusOK, buildMatrixPage(mapping, extra, nil))
}

func (h *MatrixHandler) saveMatrix(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actor := rbac.ActorFromContext(r.Context())

	// The form carries the complete desired matrix; the draft starts
	// empty and every checked cell grants. Add-only, so a repeated form
	// value cannot undo a grant.
	draft := rbac.NewDraft(nil)
	for _, grant := range r.PostForm["grant"] {
		role, perm, ok := strings.Cut(grant, ":")
		if !ok {
			continue
		}
		draft.Grant(rbac.Role(role), rbac.Permission(perm))
	}

	newRole := rbac.NormalizeRole(r.PostFormValue("new_role"))

	if err := h.editor.Save(r.Context(), actor, draft); err != nil {
		status := http.StatusInternalServerError
		message := err.Error()
		if errors.Is(err, rbac.ErrNotAdmin) {
			status = http.StatusForbidden
			message = "Yetki matrisini yalnızca yönetim düzenleyebilir."
		}
		page := buildMatrixPage(draft.Mapping(), newRole, map[string]string{"general": message})
		h.render(w, r, status, page)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Yetki matrisi güncellendi"})
	}
	target := "/admin/permissions"
	if newRole != "" {
		target += "?role=" + url.QueryEscape(string(newRole))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func buildMatrixPage(mapping rbac.Mapping, extraRole rbac.Role, formErrors map[string]string) matrixPageData {
	roleSet := make(map[rbac.Role]struct{})
	for _, role := range mapping.Roles() {
		roleSet[role] = struct{}{}
	}
	for _, role := range rbac.AdminRoles() {
		roleSet[role] = struct{}{}
	}
	if extraRole != "" {
		roleSet[extraRole] = struct{}{}
	}
	roles := make([]rbac.Role, 0, len(roleSet))
	for role := range roleSet {
		roles = append(roles, role)
	}
	rbac.SortRolesByLabel(roles)

	catalog := rbac.Catalog()
	columns := make([]matrixColumn, len(catalog))
	for i, perm := range catalog {
		columns[i] = matrixColumn{Permission: perm, Label: rbac.PermissionLabel(perm)}
	}

	rows := make([]matrixRow, len(roles))
	for i, role := range roles {
		cells := make([]matrixCell, len(catalog))
		granted := mapping.PermissionsFor(role)
		for j, perm := range catalog {
			cells[j] = matrixCell{Role: role, Permission: perm, Granted: granted.Has(perm)}
		}
		rows[i] = matrixRow{Role: role, Label: rbac.RoleLabel(role), Cells: cells}
	}

	return matrixPageData{Rows: rows, Permissions: columns, Errors: formErrors}
}

func (h *MatrixHandler) render(w http.ResponseWriter, r *http.Request, status int, data matrixPageData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Yetki Matrisi", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, "pages/matrix.html", viewData); err != nil {
		h.logger.Error("render matrix", slog.Any("error", err))
	}
}
