package rbac

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Display names for the association's known roles. Unknown keys echo the
// raw key so new data-defined roles render without code changes.
var roleLabels = map[Role]string{
	RolePresident:      "Başkan",
	RoleTechTeam:       "Teknik Ekip",
	"baskan_yardimcisi": "Başkan Yardımcısı",
	"dergi_ekibi":       "Dergi Ekibi",
	"etkinlik_ekibi":    "Etkinlik Ekibi",
	"sosyal_medya":      "Sosyal Medya Ekibi",
	"sponsorluk_ekibi":  "Sponsorluk Ekibi",
	"tasarim_ekibi":     "Tasarım Ekibi",
	"uye":               "Üye",
}

var permissionLabels = map[Permission]string{
	PermNews:        "Haberler",
	PermEvents:      "Etkinlikler",
	PermMagazines:   "Dergiler",
	PermSponsors:    "Sponsorlar",
	PermInternships: "Stajlar",
	PermSurveys:     "Anketler",
	PermProducts:    "Ürünler",
	PermTeam:        "Ekipler",
	PermDocuments:   "Belgeler",
	PermUsers:       "Kullanıcılar",
	PermRoles:       "Roller",
	PermSettings:    "Ayarlar",
}

// RequestableRoles lists the known roles a member may ask for, the
// administrative pair excluded, ordered by display label.
func RequestableRoles() []Role {
	out := make([]Role, 0, len(roleLabels))
	for role := range roleLabels {
		if IsAdminRole(role) {
			continue
		}
		out = append(out, role)
	}
	SortRolesByLabel(out)
	return out
}

// RoleLabel returns the display name for a role key.
func RoleLabel(r Role) string {
	if label, ok := roleLabels[NormalizeRole(string(r))]; ok {
		return label
	}
	return string(r)
}

// RoleLabels maps role keys to display names, preserving order.
func RoleLabels(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = RoleLabel(r)
	}
	return out
}

// JoinRoleLabels renders a role list for display.
func JoinRoleLabels(roles []Role) string {
	return strings.Join(RoleLabels(roles), ", ")
}

// PermissionLabel returns the display name for a permission key.
func PermissionLabel(p Permission) string {
	if label, ok := permissionLabels[NormalizePermission(string(p))]; ok {
		return label
	}
	return string(p)
}

// SortRolesByLabel orders roles by display name using Turkish collation, so
// the matrix rows follow the alphabet the panel's users read.
func SortRolesByLabel(roles []Role) {
	c := collate.New(language.Turkish)
	sort.SliceStable(roles, func(i, j int) bool {
		return c.CompareString(RoleLabel(roles[i]), RoleLabel(roles[j])) < 0
	})
}
