package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeStore struct {
	mu sync.Mutex

	pairs       []RolePermission
	assignments map[int64][]Assignment

	listErr    error
	replaceErr error
	assignErr  error

	listCalls   int
	assignCalls int
}

func (f *fakeStore) ListRolePermissions(ctx context.Context) ([]RolePermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]RolePermission, len(f.pairs))
	copy(out, f.pairs)
	return out, nil
}

func (f *fakeStore) ReplaceRolePermissions(ctx context.Context, pairs []RolePermission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.pairs = make([]RolePermission, len(pairs))
	copy(f.pairs, pairs)
	return nil
}

func (f *fakeStore) ListAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls++
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	return f.assignments[userID], nil
}

type fakeMetrics struct {
	mu        sync.Mutex
	decisions []string
	loads     []string
}

func (f *fakeMetrics) GuardDecision(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, outcome)
}

func (f *fakeMetrics) MappingLoad(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, source)
}

func TestMappingCacheLoadsOnce(t *testing.T) {
	store := &fakeStore{pairs: []RolePermission{{Role: "editor", Permission: "news"}}}
	cache := NewMappingCache(store, nil, nil)

	ctx := context.Background()
	first := cache.Mapping(ctx)
	second := cache.Mapping(ctx)

	if !first.PermissionsFor("editor").Has("news") {
		t.Fatalf("mapping missing stored grant")
	}
	if !first.Equal(second) {
		t.Fatalf("repeated reads must serve the same mapping")
	}
	if store.listCalls != 1 {
		t.Fatalf("expected a single store read, got %d", store.listCalls)
	}
	if cache.Degraded() {
		t.Fatalf("healthy load must not be degraded")
	}
}

func TestMappingCacheFallsBackOnStoreError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection refused")}
	metrics := &fakeMetrics{}
	cache := NewMappingCache(store, nil, metrics)

	m := cache.Mapping(context.Background())

	if !m.Equal(FallbackMapping()) {
		t.Fatalf("store failure must serve the fallback mapping")
	}
	if !cache.Degraded() {
		t.Fatalf("expected degraded mode after store failure")
	}
	// Administrators keep the full catalog even while degraded.
	for _, perm := range Catalog() {
		if !m.PermissionsFor(RolePresident).Has(perm) {
			t.Fatalf("fallback must keep %s for the president", perm)
		}
	}
	if len(metrics.loads) != 1 || metrics.loads[0] != MappingSourceFallback {
		t.Fatalf("expected one fallback load observation, got %v", metrics.loads)
	}
}

func TestMappingCacheReloadRecovers(t *testing.T) {
	store := &fakeStore{listErr: errors.New("down")}
	cache := NewMappingCache(store, nil, nil)

	_ = cache.Mapping(context.Background())
	if !cache.Degraded() {
		t.Fatalf("expected degraded first load")
	}

	store.mu.Lock()
	store.listErr = nil
	store.pairs = []RolePermission{{Role: "editor", Permission: "events"}}
	store.mu.Unlock()

	if err := cache.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cache.Degraded() {
		t.Fatalf("successful reload must clear degraded mode")
	}
	if !cache.Mapping(context.Background()).PermissionsFor("editor").Has("events") {
		t.Fatalf("reload must publish the fresh mapping")
	}
}

func TestMappingCacheReloadFailureKeepsPrevious(t *testing.T) {
	store := &fakeStore{pairs: []RolePermission{{Role: "editor", Permission: "news"}}}
	cache := NewMappingCache(store, nil, nil)
	_ = cache.Mapping(context.Background())

	store.mu.Lock()
	store.listErr = errors.New("down")
	store.mu.Unlock()

	if err := cache.Reload(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}
	if !cache.Mapping(context.Background()).PermissionsFor("editor").Has("news") {
		t.Fatalf("failed reload must keep the previous mapping in place")
	}
}
