package hrapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/authz"
)

type fakeCreds struct {
	token   string
	expired int
}

func (f *fakeCreds) APIToken() string { return f.token }
func (f *fakeCreds) ExpireAPISession() {
	f.expired++
	f.token = ""
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rh@gestionrh.test",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestLoginReadsTokenCookie(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token := signedToken(t, exp)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rh@gestionrh.test", body["email"])
		assert.Equal(t, "secret", body["motDePasse"])
		http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: token, HttpOnly: true, Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{
			"token":       nil,
			"email":       "rh@gestionrh.test",
			"nomComplet":  "Rita Haddad",
			"departement": "IT",
			"roles":       []string{"RH"},
		})
	}))

	login, err := client.Login(context.Background(), "rh@gestionrh.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, token, login.Token)
	assert.True(t, exp.Equal(login.ExpiresAt))
	assert.Empty(t, login.Profile.Token)

	user := login.Profile.User()
	assert.Equal(t, "Rita Haddad", user.Name)
	assert.Equal(t, "IT", user.Department)
	assert.Equal(t, []authz.Role{authz.RoleRH}, user.Roles)
}

func TestLoginFallsBackToBodyToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"token": "opaque", "email": "a@b.c", "roles": []string{"EMPLOYE"}})
	}))
	login, err := client.Login(context.Background(), "a@b.c", "x")
	require.NoError(t, err)
	assert.Equal(t, "opaque", login.Token)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenLifetime), login.ExpiresAt, time.Minute)
}

func TestLoginWithoutTokenFails(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"email": "a@b.c"})
	}))
	_, err := client.Login(context.Background(), "a@b.c", "x")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestLoginRejectedCarriesPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "Email ou mot de passe incorrect"})
	}))
	_, err := client.Login(context.Background(), "a@b.c", "bad")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apierr.StatusOf(err))
	assert.Equal(t, "Email ou mot de passe incorrect", apierr.Classify(err).Text)
}

func TestCallerSendsBearerAndCookie(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		cookie, err := r.Cookie(TokenCookie)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", cookie.Value)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusOK, []Employee{{ID: 1, Email: "e@x.io", Departement: "IT"}})
	}))

	employees, err := client.For(&fakeCreds{token: "tok-1"}).Employees(context.Background())
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "IT", employees[0].Departement)
}

func TestListAcceptsPageObjects(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"content":       []Department{{ID: 7, Nom: "Finance"}},
			"totalPages":    1,
			"totalElements": 1,
		})
	}))
	departments, err := client.For(&fakeCreds{token: "t"}).Departments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Department{{ID: 7, Nom: "Finance"}}, departments)
}

func TestListRejectsUnexpectedShape(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []int{1}})
	}))
	_, err := client.For(&fakeCreds{token: "t"}).Jobs(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedShape)
}

func TestUnauthorizedExpiresSession(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	creds := &fakeCreds{token: "stale"}

	_, err := client.For(creds).MyLeaves(context.Background())
	require.Error(t, err)
	assert.Equal(t, apierr.KindAuthExpired, apierr.Classify(err).Kind)
	assert.Equal(t, 1, creds.expired)
	assert.Empty(t, creds.token)
}

func TestUnauthorizedOnMeKeepsSession(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	creds := &fakeCreds{token: "t"}

	_, err := client.For(creds).Me(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, creds.expired)
}

func TestNetworkFailureHasNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: base, Timeout: time.Second}, nil)
	creds := &fakeCreds{token: "t"}
	_, err := client.For(creds).Notifications(context.Background())
	require.Error(t, err)
	assert.Equal(t, apierr.KindNetwork, apierr.Classify(err).Kind)
	assert.Equal(t, 0, creds.expired)
}

func TestValidateLeaveSendsDecision(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/conges/12/valider", r.URL.Path)
		var body ValidateLeaveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, LeaveApproved, body.Statut)
		writeJSON(w, http.StatusOK, Leave{ID: 12, Statut: LeaveApproved})
	}))
	leave, err := client.For(&fakeCreds{token: "t"}).ValidateLeave(context.Background(), 12, ValidateLeaveRequest{Statut: LeaveApproved, Commentaire: "ok"})
	require.NoError(t, err)
	assert.Equal(t, LeaveApproved, leave.Statut)
}

func TestAuditHistoryQueryAndPage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("size"))
		assert.Equal(t, "rh@gestionrh.test", q.Get("acteur"))
		assert.Equal(t, "APPROUVE", q.Get("statusNouveau"))
		assert.Equal(t, "5", q.Get("congeId"))
		assert.Empty(t, q.Get("dateDebut"))
		writeJSON(w, http.StatusOK, map[string]any{
			"content":       []LeaveHistoryEntry{{ID: 1, CongeID: 5, StatutNouveau: LeaveApproved}},
			"totalPages":    3,
			"totalElements": 21,
			"currentPage":   2,
			"pageSize":      10,
		})
	}))
	page, err := client.For(&fakeCreds{token: "t"}).AuditHistory(context.Background(), 2, 10, AuditFilter{
		Acteur:        "rh@gestionrh.test",
		StatutNouveau: LeaveApproved,
		CongeID:       5,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(21), page.TotalElements)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 10, page.PageSize)
	require.Len(t, page.Content, 1)
}

func TestAuditHistoryAcceptsArray(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []LeaveHistoryEntry{{ID: 1}, {ID: 2}})
	}))
	page, err := client.For(&fakeCreds{token: "t"}).AuditHistory(context.Background(), 0, 20, AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, int64(2), page.TotalElements)
	assert.Equal(t, 2, page.PageSize)
}

func TestNotificationCounters(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/notifications/unread-count":
			writeJSON(w, http.StatusOK, map[string]int{"count": 4})
		case "/api/notifications/mark-all-read":
			assert.Equal(t, http.MethodPost, r.Method)
			writeJSON(w, http.StatusOK, map[string]int{"markedCount": 4})
		case "/api/notifications/9/read":
			assert.Equal(t, http.MethodPut, r.Method)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	caller := client.For(&fakeCreds{token: "t"})
	count, err := caller.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	marked, err := caller.MarkAllNotificationsRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, marked)

	require.NoError(t, caller.MarkNotificationRead(context.Background(), 9))

	err = caller.DeleteNotification(context.Background(), 9)
	assert.Equal(t, apierr.KindNotFound, apierr.Classify(err).Kind)
}

func TestTokenExpiryFallsBack(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(DefaultTokenLifetime), TokenExpiry("not-a-jwt", now))

	exp := now.Add(30 * time.Minute)
	assert.True(t, exp.Equal(TokenExpiry(signedToken(t, exp), now)))
}

func TestDepartmentBalancesDecodeSoldes(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conges/soldes/departement", r.URL.Path)
		_, _ = io.WriteString(w, `[{"employeId":4,"employeNom":"Alice Martin","employeEmail":"alice@example.com","departement":"IT",
			"soldes":[{"id":9,"typeCongeNom":"Congés payés","typeCongeCode":"CP","joursRestants":12.5,"annee":2026}]}]`)
	}))
	rows, err := client.For(&fakeCreds{token: "t"}).DepartmentBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice Martin", rows[0].EmployeNom)
	assert.Equal(t, "IT", rows[0].Departement)
	require.Len(t, rows[0].Soldes, 1)
	assert.Equal(t, 12.5, rows[0].Soldes[0].JoursRestants)
	assert.Equal(t, "CP", rows[0].Soldes[0].TypeCongeCode)
}

func TestCreateEmployeeSendsPassword(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/employes", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s3cret-pass", body["motDePasse"])
		assert.NotContains(t, body, "telephone")
		writeJSON(w, http.StatusCreated, Employee{ID: 30, Email: "new@example.com"})
	}))
	emp, err := client.For(&fakeCreds{token: "t"}).CreateEmployee(context.Background(), CreateEmployeeRequest{
		Email: "new@example.com", MotDePasse: "s3cret-pass", Nom: "Neuf", Prenom: "Jean",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30), emp.ID)
}

func TestReferenceDataWrites(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 5})
	}))
	api := client.For(&fakeCreds{token: "t"})
	ctx := context.Background()

	_, err := api.CreateDepartment(ctx, DepartmentRequest{Nom: "IT"})
	require.NoError(t, err)
	_, err = api.UpdateDepartment(ctx, 5, DepartmentRequest{Nom: "IT"})
	require.NoError(t, err)
	_, err = api.CreateJob(ctx, JobRequest{Titre: "Dev", DepartementID: 5})
	require.NoError(t, err)
	_, err = api.UpdateJob(ctx, 5, JobRequest{Titre: "Dev", DepartementID: 5})
	require.NoError(t, err)
	require.NoError(t, api.DeleteJob(ctx, 5))
	_, err = api.CreateLeaveType(ctx, LeaveTypeRequest{Nom: "RTT", Code: "RTT"})
	require.NoError(t, err)
	_, err = api.UpdateLeaveType(ctx, 5, LeaveTypeRequest{Nom: "RTT", Code: "RTT"})
	require.NoError(t, err)
	require.NoError(t, api.DeleteLeaveType(ctx, 5))

	assert.Equal(t, []call{
		{http.MethodPost, "/api/departements"},
		{http.MethodPut, "/api/departements/5"},
		{http.MethodPost, "/api/postes"},
		{http.MethodPut, "/api/postes/5"},
		{http.MethodDelete, "/api/postes/5"},
		{http.MethodPost, "/api/admin/type-conges"},
		{http.MethodPut, "/api/admin/type-conges/5"},
		{http.MethodDelete, "/api/admin/type-conges/5"},
	}, calls)
}

func TestNotificationPreferences(t *testing.T) {
	var stored NotificationPreferences
	var tested TestNotificationRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/users/me/notification-preferences" && r.Method == http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&stored))
			writeJSON(w, http.StatusOK, stored)
		case r.URL.Path == "/api/users/me/notification-preferences":
			writeJSON(w, http.StatusOK, stored)
		case r.URL.Path == "/api/users/me/test-notification":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&tested))
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	api := client.For(&fakeCreds{token: "t"})
	ctx := context.Background()

	_, err := api.UpdateNotificationPreferences(ctx, NotificationPreferences{EmailEnabled: true, SmsEnabled: true})
	require.NoError(t, err)
	prefs, err := api.NotificationPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, NotificationPreferences{EmailEnabled: true, SmsEnabled: true}, *prefs)

	require.NoError(t, api.SendTestNotification(ctx, TestNotificationRequest{Channel: ChannelSlack}))
	assert.Equal(t, ChannelSlack, tested.Channel)
}

func TestAffectationHistoryKeepsMissingSides(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":1,"utilisateurId":4,"employeNomComplet":"Alice Martin","oldDepartement":null,
			"newDepartement":"IT","oldPoste":"Stagiaire","newPoste":"Développeuse","dateChangement":"2026-03-01T10:00:00","modifiePar":"rh@example.com"}]`)
	}))
	changes, err := client.For(&fakeCreds{token: "t"}).AffectationHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Empty(t, changes[0].OldDepartement)
	assert.Equal(t, "IT", changes[0].NewDepartement)
	assert.Equal(t, "rh@example.com", changes[0].ModifiePar)
}
