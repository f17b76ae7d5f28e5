// Package authz evaluates what the signed-in user may see or do in the console.
//
// Decisions are advisory: they shape the rendered views, while the GestionRH API
// stays authoritative for every write and read it serves.
package authz

// HasAnyRole reports whether the user holds at least one of the required roles.
func HasAnyRole(u *User, required ...Role) bool {
	if u == nil {
		return false
	}
	for _, role := range required {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

// ScopedRule is the two-tier capability shape: elevated roles are allowed
// unconditionally, scoped roles only inside their own department.
type ScopedRule struct {
	Elevated []Role
	Scoped   []Role
}

// Allow evaluates the rule for a target department.
func (r ScopedRule) Allow(u *User, department string) bool {
	if u == nil {
		return false
	}
	if HasAnyRole(u, r.Elevated...) {
		return true
	}
	if HasAnyRole(u, r.Scoped...) {
		return u.Department != "" && department == u.Department
	}
	return false
}

// Policy groups the department-scoped capabilities. Each field can be replaced
// without affecting the others.
type Policy struct {
	EditEmployee        ScopedRule
	ApproveLeave        ScopedRule
	ViewDepartmentStats ScopedRule
}

// DefaultPolicy mirrors the GestionRH role matrix.
var DefaultPolicy = Policy{
	EditEmployee:        ScopedRule{Elevated: []Role{RoleAdmin, RoleRH}, Scoped: []Role{RoleManager}},
	ApproveLeave:        ScopedRule{Elevated: []Role{RoleAdmin, RoleRH}, Scoped: []Role{RoleManager}},
	ViewDepartmentStats: ScopedRule{Elevated: []Role{RoleAdmin, RoleRH}, Scoped: []Role{RoleManager}},
}

// CanEditEmployee reports whether u may edit an employee of the given department.
func (p Policy) CanEditEmployee(u *User, employeeDepartment string) bool {
	return p.EditEmployee.Allow(u, employeeDepartment)
}

// CanApproveLeaveFor reports whether u may approve leave for an employee of the given department.
func (p Policy) CanApproveLeaveFor(u *User, employeeDepartment string) bool {
	return p.ApproveLeave.Allow(u, employeeDepartment)
}

// CanViewDepartmentStats reports whether u may open the statistics of a department.
func (p Policy) CanViewDepartmentStats(u *User, department string) bool {
	return p.ViewDepartmentStats.Allow(u, department)
}

// CanEditEmployee evaluates DefaultPolicy.
func CanEditEmployee(u *User, employeeDepartment string) bool {
	return DefaultPolicy.CanEditEmployee(u, employeeDepartment)
}

// CanApproveLeaveFor evaluates DefaultPolicy.
func CanApproveLeaveFor(u *User, employeeDepartment string) bool {
	return DefaultPolicy.CanApproveLeaveFor(u, employeeDepartment)
}

// CanViewDepartmentStats evaluates DefaultPolicy.
func CanViewDepartmentStats(u *User, department string) bool {
	return DefaultPolicy.CanViewDepartmentStats(u, department)
}

// DataAccess lists the sensitive-data flags for a user.
type DataAccess struct {
	ViewAllEmails    bool
	ViewAllPhones    bool
	ViewSalaries     bool
	ViewAuditTrail   bool
	ManageRoles      bool
	EditAllEmployees bool
}

// DataAccessFor derives the data-access flags from role membership.
func DataAccessFor(u *User) DataAccess {
	staff := HasAnyRole(u, RoleAdmin, RoleRH, RoleManager)
	hr := HasAnyRole(u, RoleAdmin, RoleRH)
	return DataAccess{
		ViewAllEmails:    staff,
		ViewAllPhones:    staff,
		ViewSalaries:     hr,
		ViewAuditTrail:   hr,
		ManageRoles:      hr,
		EditAllEmployees: hr,
	}
}

// FieldVisibility tells employee forms which inputs to render.
type FieldVisibility struct {
	Salary     bool
	Roles      bool
	Department bool
	Phone      bool
	Email      bool
}

// FieldVisibilityFor derives form field visibility. Phone and email are always shown.
func FieldVisibilityFor(u *User) FieldVisibility {
	hr := HasAnyRole(u, RoleAdmin, RoleRH)
	return FieldVisibility{
		Salary:     hr,
		Roles:      hr,
		Department: hr,
		Phone:      true,
		Email:      true,
	}
}
