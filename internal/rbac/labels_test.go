package rbac

import "testing"

func TestRoleLabel(t *testing.T) {
	if got := RoleLabel("baskan"); got != "Başkan" {
		t.Fatalf("expected Başkan, got %q", got)
	}
	if got := RoleLabel("  TEKNIK_EKIP "); got != "Teknik Ekip" {
		t.Fatalf("expected normalization before lookup, got %q", got)
	}
	// Data-defined roles without a label render as their raw key.
	if got := RoleLabel("yeni_ekip"); got != "yeni_ekip" {
		t.Fatalf("unknown role must echo its key, got %q", got)
	}
}

func TestPermissionLabel(t *testing.T) {
	if got := PermissionLabel(PermUsers); got != "Kullanıcılar" {
		t.Fatalf("expected Kullanıcılar, got %q", got)
	}
	if got := PermissionLabel("custom_area"); got != "custom_area" {
		t.Fatalf("unknown permission must echo its key, got %q", got)
	}
}

func TestJoinRoleLabels(t *testing.T) {
	got := JoinRoleLabels([]Role{"baskan", "uye"})
	if got != "Başkan, Üye" {
		t.Fatalf("unexpected join: %q", got)
	}
}

func TestSortRolesByLabel(t *testing.T) {
	roles := []Role{"uye", "teknik_ekip", "baskan", "dergi_ekibi"}
	SortRolesByLabel(roles)

	want := []Role{"baskan", "dergi_ekibi", "teknik_ekip", "uye"}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], roles[i])
		}
	}
}
