package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/kulupnet/kulupnet/internal/identity"
)

func adminActor() *ActorSession {
	return &ActorSession{
		Identity: &identity.Identity{ID: 1, Email: "baskan@kulupnet.local", EmailConfirmed: true},
		Roles:    []Role{RolePresident},
	}
}

func editorActor() *ActorSession {
	return &ActorSession{
		Identity: &identity.Identity{ID: 2, Email: "uye@kulupnet.local", EmailConfirmed: true},
		Roles:    []Role{"editor"},
	}
}

func TestDraftGrantIsIdempotent(t *testing.T) {
	draft := NewDraft(nil)
	draft.Grant("editor", "news")
	draft.Grant("editor", "news")
	if !draft.Granted("editor", "news") {
		t.Fatalf("a repeated grant must keep the cell granted")
	}
	if !draft.Dirty() {
		t.Fatalf("draft must be dirty after a grant")
	}
	draft.Grant("", "news")
	draft.Grant("editor", "")
	if len(draft.Mapping().Pairs()) != 1 {
		t.Fatalf("empty keys must be ignored, got %v", draft.Mapping().Pairs())
	}
}

func TestDraftToggle(t *testing.T) {
	draft := NewDraft(Mapping{"editor": NewPermissionSet("news")})
	if draft.Dirty() {
		t.Fatalf("fresh draft must be clean")
	}

	draft.Toggle("editor", "news")
	if draft.Granted("editor", "news") {
		t.Fatalf("toggle must remove an existing grant")
	}
	draft.Toggle("editor", "events")
	if !draft.Granted("editor", "events") {
		t.Fatalf("toggle must add a missing grant")
	}
	if !draft.Dirty() {
		t.Fatalf("draft must be dirty after toggles")
	}

	// Unknown roles materialise on first grant.
	draft.Toggle("yeni_ekip", "surveys")
	if !draft.Granted("yeni_ekip", "surveys") {
		t.Fatalf("toggle must create rows for new roles")
	}
}

func TestDraftToggleIgnoresEmptyKeys(t *testing.T) {
	draft := NewDraft(nil)
	draft.Toggle("", "news")
	draft.Toggle("editor", "  ")
	if draft.Dirty() {
		t.Fatalf("empty keys must not modify the draft")
	}
}

func TestDraftDoesNotTouchSource(t *testing.T) {
	source := Mapping{"editor": NewPermissionSet("news")}
	draft := NewDraft(source)
	draft.Toggle("editor", "news")

	if !source.PermissionsFor("editor").Has("news") {
		t.Fatalf("draft toggles leaked into the source mapping")
	}
}

func TestEditorSaveReplacesWholeMapping(t *testing.T) {
	store := &fakeStore{pairs: []RolePermission{
		{Role: "editor", Permission: "news"},
		{Role: "editor", Permission: "events"},
	}}
	cache := NewMappingCache(store, nil, nil)
	ctx := context.Background()
	_ = cache.Mapping(ctx)

	editor := NewEditor(store, cache, nil, nil)

	draft := NewDraft(cache.Mapping(ctx))
	draft.Toggle("editor", "news")           // drop
	draft.Toggle("dergi_ekibi", "magazines") // add

	if err := editor.Save(ctx, adminActor(), draft); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored := MappingFromPairs(store.pairs)
	if !stored.Equal(draft.Mapping()) {
		t.Fatalf("store must hold exactly the draft: %v", store.pairs)
	}
	if stored.PermissionsFor("editor").Has("news") {
		t.Fatalf("unchecked grant must be gone after full replacement")
	}

	// The shared cache reloads, so the next resolution sees the change.
	if cache.Mapping(ctx).PermissionsFor("editor").Has("news") {
		t.Fatalf("cache must publish the saved mapping")
	}
	if !cache.Mapping(ctx).PermissionsFor("dergi_ekibi").Has("magazines") {
		t.Fatalf("cache missing the new grant")
	}
}

func TestEditorSaveRequiresAdmin(t *testing.T) {
	store := &fakeStore{pairs: []RolePermission{{Role: "editor", Permission: "news"}}}
	cache := NewMappingCache(store, nil, nil)
	editor := NewEditor(store, cache, nil, nil)

	draft := NewDraft(nil)
	draft.Toggle("editor", "events")

	err := editor.Save(context.Background(), editorActor(), draft)
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := editor.Save(context.Background(), nil, draft); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("nil actor must be rejected, got %v", err)
	}

	stored := MappingFromPairs(store.pairs)
	if !stored.PermissionsFor("editor").Has("news") || stored.PermissionsFor("editor").Has("events") {
		t.Fatalf("rejected save must leave the store untouched: %v", store.pairs)
	}
}

func TestEditorSaveSurfacesStoreError(t *testing.T) {
	store := &fakeStore{replaceErr: errors.New("deadlock")}
	cache := NewMappingCache(store, nil, nil)
	editor := NewEditor(store, cache, nil, nil)

	draft := NewDraft(nil)
	draft.Toggle("editor", "events")

	if err := editor.Save(context.Background(), adminActor(), draft); err == nil {
		t.Fatalf("expected store error to surface")
	}
}
