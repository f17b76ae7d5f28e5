package view

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
)

func TestEngineRendersAffectationChanges(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	res := httptest.NewRecorder()
	err = engine.Render(res, "pages/affectations.html", TemplateData{
		Title: "Historique des affectations",
		Data: struct {
			Rows       []hrapi.AffectationChange
			Query      string
			Pagination struct{ TotalPages int }
		}{
			Rows: []hrapi.AffectationChange{{
				EmployeNomComplet: "Alice Martin",
				NewDepartement:    "IT",
				OldPoste:          "Stagiaire",
				NewPoste:          "Stagiaire",
				DateChangement:    "2026-03-01T10:00:00",
				ModifiePar:        "rh@example.com",
			}},
		},
	})

	require.NoError(t, err)
	body := res.Body.String()
	assert.Contains(t, body, "<s>Aucun</s> → IT")
	assert.Contains(t, body, "inchangé")
	assert.Contains(t, body, "01/03/2026")
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestEngineRendersLiveAttributes(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	res := httptest.NewRecorder()
	err = engine.Render(res, "pages/notifications.html", TemplateData{
		Title: "Notifications",
		User:  &authz.User{Email: "alice@example.com", Roles: []authz.Role{authz.RoleEmploye}},
		Nav:   Navigation(&authz.User{Roles: []authz.Role{authz.RoleEmploye}}, "/notifications"),
		Live:  &LiveView{Name: "notifications", Keys: []string{"notifications:liste:u=alice@example.com"}, IntervalMS: 60000, Enabled: true},
		Data: struct {
			Notifications []hrapi.Notification
			Unread        int
		}{},
	})

	require.NoError(t, err)
	body := res.Body.String()
	assert.Contains(t, body, `data-live-view="notifications"`)
	assert.Contains(t, body, "notifications:liste:u=alice@example.com")
	assert.Contains(t, body, "/static/js/live.js")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "a****@example.com", Mask("alice@example.com"))
	assert.Equal(t, "b*@example.com", Mask("bo@example.com"))
	assert.Equal(t, "****", Mask("1234"))
	assert.Equal(t, "06******78", Mask("0612345678"))
}

func TestFormatDay(t *testing.T) {
	assert.Equal(t, "05/03/2026", FormatDay("2026-03-05"))
	assert.Equal(t, "05/03/2026", FormatDay("2026-03-05T09:15:00"))
	assert.Equal(t, "05/03/2026", FormatDay("2026-03-05T09:15:00Z"))
	assert.Equal(t, "hier", FormatDay("hier"))
	assert.Equal(t, "", FormatDay(""))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "En attente", StatusLabel(hrapi.LeavePending))
	assert.Equal(t, "Approuvé", StatusLabel("APPROUVE"))
	assert.Equal(t, "INCONNU", StatusLabel("INCONNU"))
}

func TestNavigation(t *testing.T) {
	assert.Nil(t, Navigation(nil, "/"))

	employee := Navigation(&authz.User{Roles: []authz.Role{authz.RoleEmploye}}, "/conges/nouveau")
	labels := make([]string, 0, len(employee))
	for _, item := range employee {
		labels = append(labels, item.Label)
		assert.Equal(t, item.Href == "/conges", item.Active, item.Href)
	}
	assert.Equal(t, []string{"Tableau de bord", "Mes congés", "Notifications"}, labels)

	rh := Navigation(&authz.User{Roles: []authz.Role{authz.RoleRH}}, "/conges/audit")
	active := ""
	for _, item := range rh {
		if item.Active {
			active = item.Href
		}
	}
	assert.Len(t, rh, 10)
	assert.Equal(t, "/conges/audit", active, "the longest matching entry wins")

	manager := Navigation(&authz.User{Roles: []authz.Role{authz.RoleManager}}, "/employes/historique")
	hrefs := make([]string, 0, len(manager))
	for _, item := range manager {
		hrefs = append(hrefs, item.Href)
	}
	assert.Equal(t, []string{"/", "/conges", "/conges/validation", "/employes/historique", "/notifications"}, hrefs)

	admin := Navigation(&authz.User{Roles: []authz.Role{authz.RoleAdmin}}, "/")
	assert.Len(t, admin, 11)
}

func TestFormErrors(t *testing.T) {
	type form struct {
		Email string `form:"email" validate:"required,email"`
		Jours int    `form:"jours" validate:"min=1"`
		Code  string `validate:"oneof=CP RTT"`
	}
	err := NewValidator().Struct(form{Email: "x", Code: "AUTRE"})

	assert.Equal(t, map[string]string{
		"email": "Adresse email invalide",
		"jours": "Valeur trop courte",
		"Code":  "Valeur non autorisée",
	}, FormErrors(err))
	assert.Equal(t, map[string]string{"general": "boom"}, FormErrors(errors.New("boom")))

	type account struct {
		Password string `form:"motDePasse" validate:"password"`
	}
	assert.Empty(t, FormErrors(NewValidator().Struct(account{Password: "Abcdef1!"})))
	assert.Equal(t, map[string]string{"motDePasse": fieldMessages["password"]}, FormErrors(NewValidator().Struct(account{Password: "abcdef12"})))
	assert.Empty(t, FormErrors(nil))
}
