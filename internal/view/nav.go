package view

import (
	"strings"

	"github.com/gestionrh/gestionrh-console/internal/authz"
)

// NavItem is one entry of the main navigation.
type NavItem struct {
	Label  string
	Href   string
	Active bool
}

type navEntry struct {
	label string
	href  string
	roles []authz.Role
}

var navigation = []navEntry{
	{label: "Tableau de bord", href: "/"},
	{label: "Mes congés", href: "/conges"},
	{label: "Validation", href: "/conges/validation", roles: []authz.Role{authz.RoleAdmin, authz.RoleRH, authz.RoleManager}},
	{label: "Toutes les demandes", href: "/conges/toutes", roles: []authz.Role{authz.RoleAdmin, authz.RoleRH}},
	{label: "Types de congés", href: "/conges/types", roles: []authz.Role{authz.RoleAdmin}},
	{label: "Employés", href: "/employes", roles: []authz.Role{authz.RoleAdmin, authz.RoleRH}},
	{label: "Départements", href: "/departements", roles: []authz.Role{authz.RoleAdmin, authz.RoleRH}},
	{label: "Postes", href: "/postes", roles: []authz.Role{authz.RoleAdmin, authz.RoleRH}},
	{label: "Affectations", href: "/employes/historique", roles: []authz.Role{authz.RoleAdmin, authz.RoleRH, authz.RoleManager}},
	{label: "Historique", href: "/conges/audit", roles: []authz.Role{authz.RoleAdmin, authz.RoleRH}},
	{label: "Notifications", href: "/notifications"},
}

// Navigation returns the entries visible to u, marking the one matching path.
func Navigation(u *authz.User, path string) []NavItem {
	if u == nil {
		return nil
	}
	items := make([]NavItem, 0, len(navigation))
	active := -1
	for _, entry := range navigation {
		if len(entry.roles) > 0 && !authz.HasAnyRole(u, entry.roles...) {
			continue
		}
		items = append(items, NavItem{Label: entry.label, Href: entry.href})
		if matchesPath(entry.href, path) && (active < 0 || len(entry.href) > len(items[active].Href)) {
			active = len(items) - 1
		}
	}
	if active >= 0 {
		items[active].Active = true
	}
	return items
}

func matchesPath(href, path string) bool {
	if href == "/" {
		return path == "/"
	}
	return path == href || strings.HasPrefix(path, href+"/")
}
