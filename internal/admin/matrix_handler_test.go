package admin_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/kulupnet/kulupnet/internal/admin"
	"github.com/kulupnet/kulupnet/internal/identity"
	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
	"github.com/kulupnet/kulupnet/internal/view"
	_ "github.com/kulupnet/kulupnet/testing"
)

type stubProvider struct {
	id *identity.Identity
}

func (s *stubProvider) Current(ctx context.Context) (*identity.Identity, error) {
	if s.id == nil {
		return nil, identity.ErrUnauthenticated
	}
	return s.id, nil
}

func (s *stubProvider) SignOut(ctx context.Context, everywhere bool) error { return nil }

type memStore struct {
	mu          sync.Mutex
	pairs       []rbac.RolePermission
	assignments map[int64][]rbac.Assignment
}

func (m *memStore) ListRolePermissions(ctx context.Context) ([]rbac.RolePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]rbac.RolePermission(nil), m.pairs...), nil
}

func (m *memStore) ReplaceRolePermissions(ctx context.Context, pairs []rbac.RolePermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs = append([]rbac.RolePermission(nil), pairs...)
	return nil
}

func (m *memStore) ListAssignments(ctx context.Context, userID int64) ([]rbac.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignments[userID], nil
}

type matrixFixture struct {
	router   chi.Router
	sessions *shared.SessionManager
	store    *memStore
	cache    *rbac.MappingCache
}

func newMatrixFixture(t *testing.T, actor *identity.Identity, store *memStore) *matrixFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")

	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}

	cache := rbac.NewMappingCache(store, nil, nil)
	resolver := rbac.NewResolver(&stubProvider{id: actor}, store, cache, nil)
	guard := &rbac.Guard{Resolver: resolver, Sessions: sessions, Views: templates}
	editor := rbac.NewEditor(store, cache, nil, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := admin.NewMatrixHandler(logger, editor, cache, templates, csrf, guard)
	router := chi.NewRouter()
	router.Route("/admin/permissions", handler.MountRoutes)

	return &matrixFixture{router: router, sessions: sessions, store: store, cache: cache}
}

func (f *matrixFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func presidentIdentity() *identity.Identity {
	return &identity.Identity{ID: 1, Email: "baskan@kulupnet.local", EmailConfirmed: true}
}

func adminStore() *memStore {
	return &memStore{
		pairs: []rbac.RolePermission{
			{Role: "baskan", Permission: "roles"},
			{Role: "editor", Permission: "news"},
		},
		assignments: map[int64][]rbac.Assignment{
			1: {{Role: "baskan", Approved: true}},
			2: {{Role: "editor", Approved: true}},
		},
	}
}

func TestShowMatrix(t *testing.T) {
	f := newMatrixFixture(t, presidentIdentity(), adminStore())

	res := f.do(t, httptest.NewRequest(http.MethodGet, "/admin/permissions", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "Başkan") || !strings.Contains(body, "Teknik Ekip") {
		t.Fatalf("administrative rows must always render")
	}
	if !strings.Contains(body, `value="editor:news" checked`) {
		t.Fatalf("expected the stored grant to render checked, got: %s", body)
	}
	if !strings.Contains(body, `value="editor:events" `) && !strings.Contains(body, `value="editor:events">`) {
		t.Fatalf("expected unchecked cells for the full catalog")
	}
}

func TestSaveMatrixReplacesMapping(t *testing.T) {
	store := adminStore()
	f := newMatrixFixture(t, presidentIdentity(), store)

	form := url.Values{"grant": {
		"baskan:roles",
		"baskan:users",
		"editor:events", // editor loses news, gains events
	}}
	req := httptest.NewRequest(http.MethodPost, "/admin/permissions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res := f.do(t, req)
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", res.Code, res.Body.String())
	}

	stored := rbac.MappingFromPairs(store.pairs)
	if stored.PermissionsFor("editor").Has("news") {
		t.Fatalf("unchecked grant must be removed by the save")
	}
	if !stored.PermissionsFor("editor").Has("events") || !stored.PermissionsFor("baskan").Has("users") {
		t.Fatalf("checked grants missing after save: %v", store.pairs)
	}
	if f.cache.Mapping(context.Background()).PermissionsFor("editor").Has("news") {
		t.Fatalf("cache must reload after save")
	}
}

func TestSaveMatrixToleratesDuplicateFormValues(t *testing.T) {
	store := adminStore()
	f := newMatrixFixture(t, presidentIdentity(), store)

	// A doubled checkbox value must not flip the cell back off.
	form := url.Values{"grant": {
		"baskan:roles",
		"editor:events",
		"editor:events",
	}}
	req := httptest.NewRequest(http.MethodPost, "/admin/permissions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res := f.do(t, req)
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	stored := rbac.MappingFromPairs(store.pairs)
	if !stored.PermissionsFor("editor").Has("events") {
		t.Fatalf("duplicated grant values must still grant: %v", store.pairs)
	}
}

func TestSaveMatrixAddsNewRoleRow(t *testing.T) {
	f := newMatrixFixture(t, presidentIdentity(), adminStore())

	form := url.Values{
		"grant":    {"baskan:roles"},
		"new_role": {"Tanitim_Ekibi"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/permissions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res := f.do(t, req)
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/admin/permissions?role=tanitim_ekibi" {
		t.Fatalf("expected the new role to survive the redirect, got %q", loc)
	}

	followup := f.do(t, httptest.NewRequest(http.MethodGet, "/admin/permissions?role=tanitim_ekibi", nil))
	if !strings.Contains(followup.Body.String(), "tanitim_ekibi") {
		t.Fatalf("expected an empty row for the new role")
	}
}

func TestSaveMatrixRequiresAdminRole(t *testing.T) {
	// The editor role carries the "roles" permission here, so the route
	// admits them, but saving still requires an administrative role.
	store := adminStore()
	store.pairs = append(store.pairs, rbac.RolePermission{Role: "editor", Permission: "roles"})
	editorID := &identity.Identity{ID: 2, Email: "uye@kulupnet.local", EmailConfirmed: true}
	f := newMatrixFixture(t, editorID, store)

	form := url.Values{"grant": {"editor:settings"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/permissions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res := f.do(t, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "yönetim") {
		t.Fatalf("expected the admin-only message")
	}

	stored := rbac.MappingFromPairs(store.pairs)
	if stored.PermissionsFor("editor").Has("settings") {
		t.Fatalf("rejected save must not reach the store")
	}
}
