package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kulupnet/kulupnet/internal/admin"
	"github.com/kulupnet/kulupnet/internal/assignments"
	"github.com/kulupnet/kulupnet/internal/auth"
	"github.com/kulupnet/kulupnet/internal/identity"
	"github.com/kulupnet/kulupnet/internal/observability"
	"github.com/kulupnet/kulupnet/internal/platform/httpx"
	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
	"github.com/kulupnet/kulupnet/internal/view"
	"github.com/kulupnet/kulupnet/jobs"
	"github.com/kulupnet/kulupnet/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          *rbac.Guard

	AuthHandler        *auth.Handler
	MemberHandler      *assignments.MemberHandler
	MatrixHandler      *admin.MatrixHandler
	AssignmentsHandler *admin.AssignmentsHandler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router for the admin panel.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	// Token callers carry their identity in the Authorization header; the
	// guard sees it through the identity provider chain.
	r.Use(identity.BearerMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// The panel home needs a signed-in, approved member but no specific
	// role; role requirements attach per admin section below.
	r.Group(func(r chi.Router) {
		r.Use(params.Guard.Protect(rbac.WithoutRole()))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			renderHome(params, w, r)
		})
		if params.MemberHandler != nil {
			r.Route("/roles", params.MemberHandler.MountRoutes)
		}
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.Guard.Protect())
		r.Route("/permissions", params.MatrixHandler.MountRoutes)
		r.Route("/assignments", params.AssignmentsHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func renderHome(params RouterParams, w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	actor := rbac.ActorFromContext(r.Context())
	var sections []string
	for _, p := range rbac.Catalog() {
		if actor.HasPermission(p) {
			sections = append(sections, rbac.PermissionLabel(p))
		}
	}
	type roleOption struct {
		Key   string
		Label string
	}
	var requestable []roleOption
	for _, role := range rbac.RequestableRoles() {
		if actor.HasRole(role) {
			continue
		}
		requestable = append(requestable, roleOption{Key: string(role), Label: rbac.RoleLabel(role)})
	}
	data := view.TemplateData{
		Title:       "Kulüpnet Yönetim Paneli",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data: map[string]any{
			"Email":            actor.Identity.Email,
			"Roles":            rbac.JoinRoleLabels(actor.Roles),
			"Sections":         sections,
			"RequestableRoles": requestable,
		},
	}
	if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
		params.Logger.Error("render home", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
