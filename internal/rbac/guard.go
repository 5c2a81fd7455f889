package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kulupnet/kulupnet/internal/shared"
	"github.com/kulupnet/kulupnet/internal/view"
)

// Decision is the outcome of evaluating a resolved session for a protected
// region.
type Decision int

const (
	// DecisionChecking means resolution is unfinished or failed; the
	// visitor sees a verifying interstitial, never a denial.
	DecisionChecking Decision = iota
	// DecisionUnauthenticated redirects to the login entry point.
	DecisionUnauthenticated
	// DecisionUnverifiedEmail renders the verify-your-email interstitial.
	DecisionUnverifiedEmail
	// DecisionUnapprovedRole renders the awaiting-approval interstitial.
	DecisionUnapprovedRole
	// DecisionGranted renders the protected content.
	DecisionGranted
)

// String names the decision for logs and metrics.
func (d Decision) String() string {
	switch d {
	case DecisionChecking:
		return "checking"
	case DecisionUnauthenticated:
		return "unauthenticated"
	case DecisionUnverifiedEmail:
		return "unverified_email"
	case DecisionUnapprovedRole:
		return "unapproved_role"
	case DecisionGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// Evaluate runs the guard state machine over a resolved session. The email
// check precedes the role check; an unverified actor with zero roles is told
// about the email first. A nil session means resolution never finished.
func Evaluate(sess *ActorSession, requireRole bool) Decision {
	switch {
	case sess == nil:
		return DecisionChecking
	case !sess.Authenticated():
		return DecisionUnauthenticated
	case !sess.EmailConfirmed():
		return DecisionUnverifiedEmail
	case requireRole && !sess.Approved():
		return DecisionUnapprovedRole
	default:
		return DecisionGranted
	}
}

type actorContextKey struct{}

// ContextWithActor stores the resolved session in context.
func ContextWithActor(ctx context.Context, sess *ActorSession) context.Context {
	return context.WithValue(ctx, actorContextKey{}, sess)
}

// ActorFromContext extracts the resolved session, nil when absent.
func ActorFromContext(ctx context.Context) *ActorSession {
	sess, _ := ctx.Value(actorContextKey{}).(*ActorSession)
	return sess
}

// Guard decides render-vs-redirect for protected routes, with a circuit
// breaker against redirect loops caused by corrupt session state.
type Guard struct {
	Resolver *Resolver
	Sessions *shared.SessionManager
	Views    *view.Engine
	Logger   *slog.Logger
	Metrics  MetricsRecorder

	// LoginPath is the login entry point redirect target.
	LoginPath string
	// RedirectLimit trips the circuit breaker; defaults to 3.
	RedirectLimit int
	// RedirectWindow bounds how long redirect attempts accumulate.
	RedirectWindow time.Duration
	// ResolveTimeout bounds one session resolution.
	ResolveTimeout time.Duration
}

type protectConfig struct {
	requireRole bool
}

// ProtectOption configures a protected region.
type ProtectOption func(*protectConfig)

// WithoutRole protects a region that needs authentication and a verified
// email but no approved operational role.
func WithoutRole() ProtectOption {
	return func(cfg *protectConfig) { cfg.requireRole = false }
}

const redirectCounterKey = "guard_redirects"

// Protect wraps a protected region with the guard state machine.
func (g *Guard) Protect(opts ...ProtectOption) func(http.Handler) http.Handler {
	cfg := protectConfig{requireRole: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), g.resolveTimeout())
			sess, err := g.Resolver.Resolve(ctx)
			cancel()
			if err != nil {
				// Resolution failures are "still checking", not a
				// denial; a transient store blip must not flash an
				// access-denied screen.
				if g.Logger != nil {
					g.Logger.Warn("guard: session resolution failed", slog.Any("error", err))
				}
				g.observe(DecisionChecking)
				g.renderChecking(w, r)
				return
			}

			decision := Evaluate(sess, cfg.requireRole)
			g.observe(decision)
			switch decision {
			case DecisionGranted:
				g.resetRedirectCounter(r)
				next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), sess)))
			case DecisionUnauthenticated:
				g.redirectToLogin(w, r)
			case DecisionUnverifiedEmail:
				g.resetRedirectCounter(r)
				g.renderInterstitial(w, r, http.StatusForbidden,
					"E-posta doğrulaması gerekiyor",
					"Panele erişmeden önce e-posta adresinizi doğrulamanız gerekiyor. Doğrulama bağlantısı için giriş sayfasına dönün.",
					true)
			case DecisionUnapprovedRole:
				g.resetRedirectCounter(r)
				g.renderInterstitial(w, r, http.StatusForbidden,
					"Rol onayı bekleniyor",
					"Hesabınız doğrulandı ancak henüz onaylanmış bir göreviniz yok. Yönetim onayladıktan sonra panel açılır.",
					false)
			default:
				g.renderChecking(w, r)
			}
		})
	}
}

// RequireAny admits actors holding at least one of the given permissions.
// Runs after Protect; it resolves on its own when the context carries no
// actor so feature routes stay safe in isolation.
func (g *Guard) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return g.requirePermissions(perms, false)
}

// RequireAll admits actors holding every one of the given permissions.
func (g *Guard) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return g.requirePermissions(perms, true)
}

func (g *Guard) requirePermissions(perms []Permission, all bool) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			sess := ActorFromContext(r.Context())
			if sess == nil {
				resolved, err := g.Resolver.Resolve(r.Context())
				if err != nil {
					if g.Logger != nil {
						g.Logger.Warn("guard: permission check resolution failed", slog.Any("error", err))
					}
					g.renderChecking(w, r)
					return
				}
				sess = resolved
				r = r.WithContext(ContextWithActor(r.Context(), sess))
			}
			if permitted(sess, normalized, all) {
				next.ServeHTTP(w, r)
				return
			}
			g.renderInterstitial(w, r, http.StatusForbidden,
				"Yetkiniz yok",
				"Bu bölüm için gerekli yetkiye sahip değilsiniz.",
				false)
		})
	}
}

func permitted(sess *ActorSession, required []Permission, all bool) bool {
	for _, p := range required {
		if sess.HasPermission(p) {
			if !all {
				return true
			}
			continue
		}
		if all {
			return false
		}
	}
	return all
}

func normalizePermissions(perms []Permission) []Permission {
	unique := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		p = NormalizePermission(string(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]Permission, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

// redirectToLogin sends the visitor to the login entry point, keeping the
// requested location for the post-login return. Once the counter reaches the
// limit within the window, the stored session is presumed corrupt: the guard
// destroys it, tells the browser to drop its state and navigates to login
// without a return target.
func (g *Guard) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	count, first := parseRedirectCounter(sess)
	now := time.Now()
	if first.IsZero() || now.Sub(first) > g.redirectWindow() {
		count, first = 0, now
	}
	count++

	if count >= g.redirectLimit() {
		if g.Logger != nil {
			g.Logger.Warn("guard: redirect loop detected, clearing client state",
				slog.Int("attempts", count), slog.String("path", r.URL.Path))
		}
		if sess != nil {
			g.Sessions.Destroy(sess)
		}
		w.Header().Set("Clear-Site-Data", `"cookies", "storage"`)
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, g.loginPath(), http.StatusSeeOther)
		return
	}

	if sess != nil {
		sess.Set(redirectCounterKey, formatRedirectCounter(count, first))
	}
	target := g.loginPath() + "?next=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (g *Guard) resetRedirectCounter(r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if sess.Get(redirectCounterKey) != "" {
			sess.Delete(redirectCounterKey)
		}
	}
}

func parseRedirectCounter(sess *shared.Session) (int, time.Time) {
	if sess == nil {
		return 0, time.Time{}
	}
	raw := sess.Get(redirectCounterKey)
	countStr, firstStr, ok := strings.Cut(raw, "|")
	if !ok {
		return 0, time.Time{}
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, time.Time{}
	}
	nanos, err := strconv.ParseInt(firstStr, 10, 64)
	if err != nil {
		return 0, time.Time{}
	}
	return count, time.Unix(0, nanos)
}

func formatRedirectCounter(count int, first time.Time) string {
	return fmt.Sprintf("%d|%d", count, first.UnixNano())
}

func (g *Guard) renderChecking(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "2")
	g.renderPage(w, r, http.StatusServiceUnavailable,
		"Oturum doğrulanıyor",
		"Oturumunuz doğrulanıyor, lütfen sayfayı yenileyin.",
		false)
}

func (g *Guard) renderInterstitial(w http.ResponseWriter, r *http.Request, status int, heading, message string, loginLink bool) {
	g.renderPage(w, r, status, heading, message, loginLink)
}

func (g *Guard) renderPage(w http.ResponseWriter, r *http.Request, status int, heading, message string, loginLink bool) {
	if g.Views == nil {
		http.Error(w, message, status)
		return
	}
	w.WriteHeader(status)
	data := view.TemplateData{
		Title:       heading,
		CurrentPath: r.URL.Path,
		Data: map[string]any{
			"Heading":       heading,
			"Message":       message,
			"ShowLoginLink": loginLink,
			"LoginPath":     g.loginPath(),
		},
	}
	if err := g.Views.Render(w, "pages/interstitial.html", data); err != nil && g.Logger != nil {
		g.Logger.Error("guard: render interstitial", slog.Any("error", err))
	}
}

func (g *Guard) observe(d Decision) {
	if g.Metrics != nil {
		g.Metrics.GuardDecision(d.String())
	}
}

func (g *Guard) loginPath() string {
	if g.LoginPath != "" {
		return g.LoginPath
	}
	return "/auth/login"
}

func (g *Guard) redirectLimit() int {
	if g.RedirectLimit > 0 {
		return g.RedirectLimit
	}
	return 3
}

func (g *Guard) redirectWindow() time.Duration {
	if g.RedirectWindow > 0 {
		return g.RedirectWindow
	}
	return 30 * time.Second
}

func (g *Guard) resolveTimeout() time.Duration {
	if g.ResolveTimeout > 0 {
		return g.ResolveTimeout
	}
	return 5 * time.Second
}
