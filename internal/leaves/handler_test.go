package leaves

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
)

func TestValidateDates(t *testing.T) {
	today := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		start, end string
		want       map[string]string
	}{
		{"same day", "2026-03-10", "2026-03-10", map[string]string{}},
		{"range", "2026-03-12", "2026-03-20", map[string]string{}},
		{"bad start", "12/03/2026", "2026-03-20", map[string]string{"dateDebut": "Date invalide (AAAA-MM-JJ)"}},
		{"bad end", "2026-03-12", "", map[string]string{"dateFin": "Date invalide (AAAA-MM-JJ)"}},
		{"past start", "2026-03-09", "2026-03-12", map[string]string{"dateDebut": "La date de début ne peut pas être dans le passé"}},
		{"end before start", "2026-03-20", "2026-03-12", map[string]string{"dateFin": "La date de fin doit suivre la date de début"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateDates(tt.start, tt.end, today))
		})
	}
}

func TestApprovable(t *testing.T) {
	pending := []hrapi.Leave{
		{ID: 1, Statut: hrapi.LeavePending, EmployeEmail: "bob@example.com", EmployeDepartement: "IT"},
		{ID: 2, Statut: hrapi.LeavePending, EmployeEmail: "eve@example.com", EmployeDepartement: "Finance"},
		{ID: 3, Statut: hrapi.LeaveApproved, EmployeEmail: "ann@example.com", EmployeDepartement: "IT"},
		{ID: 4, Statut: hrapi.LeavePending, EmployeEmail: "boss@example.com", EmployeDepartement: "IT"},
		{ID: 5, EmployeEmail: "joe@example.com", EmployeDepartement: "IT"},
	}
	ids := func(leaves []hrapi.Leave) []int64 {
		out := make([]int64, 0, len(leaves))
		for _, l := range leaves {
			out = append(out, l.ID)
		}
		return out
	}

	manager := &authz.User{Email: "boss@example.com", Roles: []authz.Role{authz.RoleManager}, Department: "IT"}
	assert.Equal(t, []int64{1, 5}, ids(Approvable(manager, authz.DefaultPolicy, pending)))

	rh := &authz.User{Email: "rh@example.com", Roles: []authz.Role{authz.RoleRH}}
	assert.Equal(t, []int64{1, 2, 4, 5}, ids(Approvable(rh, authz.DefaultPolicy, pending)))

	orphan := &authz.User{Email: "lost@example.com", Roles: []authz.Role{authz.RoleManager}}
	assert.Empty(t, Approvable(orphan, authz.DefaultPolicy, pending))

	employee := &authz.User{Email: "bob@example.com", Roles: []authz.Role{authz.RoleEmploye}, Department: "IT"}
	assert.Empty(t, Approvable(employee, authz.DefaultPolicy, pending))
}

func TestAuditFilterFromQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/conges/audit?acteur=+rh@example.com+&statut=APPROUVE&dateDebut=2026-01-01&dateFin=2026-01-31&congeId=42&page=3", nil)

	filter, form, page := AuditFilterFromQuery(r)

	assert.Equal(t, hrapi.AuditFilter{
		Acteur:        "rh@example.com",
		StatutNouveau: hrapi.LeaveApproved,
		DateDebut:     "2026-01-01",
		DateFin:       "2026-01-31",
		CongeID:       42,
	}, filter)
	assert.Equal(t, "42", form.CongeID)
	assert.Equal(t, 3, page)
}

func TestAuditFilterFromQueryDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/conges/audit?congeId=abc&page=-2", nil)

	filter, _, page := AuditFilterFromQuery(r)

	assert.Equal(t, hrapi.AuditFilter{}, filter)
	assert.Equal(t, 1, page)
}

func TestFilterLeaves(t *testing.T) {
	leaves := []hrapi.Leave{
		{ID: 1, DateDebut: "2026-04-01", Statut: hrapi.LeavePending, EmployeNom: "Alice Martin", EmployeEmail: "alice@example.com", EmployeDepartement: "IT"},
		{ID: 2, DateDebut: "2026-05-10", Statut: hrapi.LeaveApproved, EmployeNom: "Eve Durand", EmployeEmail: "eve@example.com", EmployeDepartement: "Finance"},
		{ID: 3, DateDebut: "2026-06-01", Statut: hrapi.LeavePending, EmployeNom: "Marc Petit", EmployeEmail: "marc@example.com", EmployeDepartement: "IT"},
	}
	ids := func(in []hrapi.Leave) []int64 {
		out := make([]int64, 0, len(in))
		for _, l := range in {
			out = append(out, l.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter LeaveFilter
		want   []int64
	}{
		{"everything newest first", LeaveFilter{}, []int64{3, 2, 1}},
		{"status", LeaveFilter{Statut: hrapi.LeavePending}, []int64{3, 1}},
		{"department", LeaveFilter{Query: "it"}, []int64{3, 1}},
		{"email", LeaveFilter{Query: "EVE@"}, []int64{2}},
		{"status and name", LeaveFilter{Query: "alice", Statut: hrapi.LeaveApproved}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterLeaves(leaves, tt.filter)))
		})
	}
}

func TestTypeFormRequest(t *testing.T) {
	in, errs := TypeForm{Nom: "Réduction du temps de travail", Code: "rtt", JoursParAn: "10.5", CompteWeekend: true}.Request()
	assert.Nil(t, errs)
	assert.Equal(t, hrapi.LeaveTypeRequest{Nom: "Réduction du temps de travail", Code: "RTT", JoursParAn: 10.5, CompteWeekend: true}, in)

	_, errs = TypeForm{Nom: "Trop", Code: "X", JoursParAn: "400"}.Request()
	assert.Contains(t, errs, "joursParAn")
	_, errs = TypeForm{Nom: "Négatif", Code: "X", JoursParAn: "-1"}.Request()
	assert.Contains(t, errs, "joursParAn")
}

func TestTypeFormFromRoundTrips(t *testing.T) {
	lt := hrapi.LeaveType{ID: 3, Nom: "Congés payés", Code: "CP", JoursParAn: 25, PeutDeborderSurCP: false, CompteWeekend: false}
	form := TypeFormFrom(lt)
	assert.Equal(t, "25", form.JoursParAn)
	in, errs := form.Request()
	assert.Nil(t, errs)
	assert.Equal(t, lt.JoursParAn, in.JoursParAn)
	assert.Equal(t, "CP", in.Code)
}

func TestAdminTypesKeyFollowsReferenceKey(t *testing.T) {
	assert.Equal(t, console.KeyLeaveTypes+":admin", adminTypesKey)
}
