package employees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

var directory = []hrapi.Employee{
	{ID: 1, Email: "zoe@example.com", NomComplet: "Zoé Bernard", Telephone: "0612345678", Departement: "Finance", Actif: true},
	{ID: 2, Email: "alice@example.com", NomComplet: "Alice Martin", Telephone: "0698765432", Departement: "IT", Actif: true},
	{ID: 3, Email: "marc@example.com", Prenom: "Marc", Nom: "Petit", Departement: "IT", Actif: false},
}

func TestBuildRowsMasksContactsForEmployees(t *testing.T) {
	u := &authz.User{Email: "alice@example.com", Roles: []authz.Role{authz.RoleEmploye}, Department: "IT"}

	rows := BuildRows(u, authz.DefaultPolicy, directory, Filter{})

	require.Len(t, rows, 3)
	assert.Equal(t, "Alice Martin", rows[0].Name)
	assert.Equal(t, "alice@example.com", rows[0].Email, "own contact stays visible")
	assert.Equal(t, "0698765432", rows[0].Phone)
	assert.Equal(t, "Marc Petit", rows[1].Name)
	assert.Equal(t, "z**@example.com", rows[2].Email)
	assert.Equal(t, "06******78", rows[2].Phone)
	for _, row := range rows {
		assert.False(t, row.CanEdit)
	}
}

func TestBuildRowsManagerEditsOwnDepartment(t *testing.T) {
	u := &authz.User{Email: "boss@example.com", Roles: []authz.Role{authz.RoleManager}, Department: "IT"}

	rows := BuildRows(u, authz.DefaultPolicy, directory, Filter{})

	byID := map[int64]Row{}
	for _, row := range rows {
		byID[row.ID] = row
	}
	assert.True(t, byID[2].CanEdit)
	assert.True(t, byID[3].CanEdit)
	assert.False(t, byID[1].CanEdit)
	assert.Equal(t, "zoe@example.com", byID[1].Email, "managers see every contact")
}

func TestBuildRowsFilters(t *testing.T) {
	u := &authz.User{Email: "rh@example.com", Roles: []authz.Role{authz.RoleRH}}

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"active only", Filter{Status: "actifs"}, []int64{2, 1}},
		{"inactive only", Filter{Status: "inactifs"}, []int64{3}},
		{"department", Filter{Departement: "it"}, []int64{2, 3}},
		{"query on name", Filter{Query: "petit"}, []int64{3}},
		{"query on email", Filter{Query: "ZOE@"}, []int64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := BuildRows(u, authz.DefaultPolicy, directory, tt.filter)
			ids := make([]int64, 0, len(rows))
			for _, row := range rows {
				ids = append(ids, row.ID)
				assert.True(t, row.CanEdit)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCreateRequestFollowsFieldVisibility(t *testing.T) {
	form := createForm{
		employeeForm: employeeForm{
			Nom: "Neuf", Prenom: "Jean", Email: "jean@example.com",
			Departement: "IT", Roles: []string{"MANAGER"},
		},
		MotDePasse: "Secret1!x",
	}

	hr := createRequest(form, authz.FieldVisibilityFor(&authz.User{Roles: []authz.Role{authz.RoleRH}}))
	assert.Equal(t, "IT", hr.Departement)
	assert.Equal(t, []string{"MANAGER"}, hr.Roles)
	assert.Equal(t, "Secret1!x", hr.MotDePasse)
	require.NotNil(t, hr.Actif)
	assert.True(t, *hr.Actif)

	manager := createRequest(form, authz.FieldVisibilityFor(&authz.User{Roles: []authz.Role{authz.RoleManager}}))
	assert.Empty(t, manager.Departement)
	assert.Nil(t, manager.Roles)
}

func TestCreateFormPasswordRule(t *testing.T) {
	v := view.NewValidator()
	base := employeeForm{Nom: "Neuf", Prenom: "Jean", Email: "jean@example.com"}

	tests := []struct {
		password string
		ok       bool
	}{
		{"Secret1!x", true},
		{"secret1!x", false},
		{"Secret!xx", false},
		{"Secret1xx", false},
		{"Se1!", false},
		{"Secret1!x é", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			errs := view.FormErrors(v.Struct(createForm{employeeForm: base, MotDePasse: tt.password}))
			if tt.ok {
				assert.Empty(t, errs)
				return
			}
			assert.Contains(t, errs, "motDePasse")
		})
	}
}

func TestFilterAffectations(t *testing.T) {
	changes := []hrapi.AffectationChange{
		{ID: 1, EmployeNomComplet: "Alice Martin", ModifiePar: "rh@example.com", DateChangement: "2026-01-10T09:00:00"},
		{ID: 2, EmployeNomComplet: "Marc Petit", ModifiePar: "admin@example.com", DateChangement: "2026-03-02T09:00:00"},
		{ID: 3, EmployeNomComplet: "Zoé Bernard", ModifiePar: "rh@example.com", DateChangement: "2026-02-15T09:00:00"},
	}

	ids := func(in []hrapi.AffectationChange) []int64 {
		out := make([]int64, 0, len(in))
		for _, c := range in {
			out = append(out, c.ID)
		}
		return out
	}
	assert.Equal(t, []int64{2, 3, 1}, ids(FilterAffectations(changes, "")))
	assert.Equal(t, []int64{3, 1}, ids(FilterAffectations(changes, " RH@ ")))
	assert.Equal(t, []int64{2}, ids(FilterAffectations(changes, "petit")))
	assert.Empty(t, FilterAffectations(changes, "inconnu"))
}
