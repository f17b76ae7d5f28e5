package authz

import "strings"

// Role is an actor capability tag issued by the GestionRH API.
type Role string

// Known roles.
const (
	RoleAdmin   Role = "ADMIN"
	RoleRH      Role = "RH"
	RoleManager Role = "MANAGER"
	RoleEmploye Role = "EMPLOYE"
)

// AllRoles lists every role in display order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleRH, RoleManager, RoleEmploye}
}

// ParseRole normalises an API role string ("ROLE_ADMIN", "admin") into a Role.
func ParseRole(raw string) (Role, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	value = strings.TrimPrefix(value, "ROLE_")
	switch Role(value) {
	case RoleAdmin, RoleRH, RoleManager, RoleEmploye:
		return Role(value), true
	}
	return "", false
}

// ParseRoles converts API role strings, dropping unknown values.
func ParseRoles(raw []string) []Role {
	roles := make([]Role, 0, len(raw))
	seen := make(map[Role]struct{}, len(raw))
	for _, r := range raw {
		role, ok := ParseRole(r)
		if !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}

// User is the signed-in actor as seen by the console.
type User struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Roles      []Role `json:"roles"`
	Department string `json:"department"`
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
