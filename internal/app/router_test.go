package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/auth"
	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/dashboard"
	"github.com/gestionrh/gestionrh-console/internal/departments"
	"github.com/gestionrh/gestionrh-console/internal/employees"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/leaves"
	"github.com/gestionrh/gestionrh-console/internal/live"
	"github.com/gestionrh/gestionrh-console/internal/notifications"
	"github.com/gestionrh/gestionrh-console/internal/observability"
	"github.com/gestionrh/gestionrh-console/internal/positions"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/rbac"
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/internal/view"
	"github.com/gestionrh/gestionrh-console/jobs"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	api := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(api.Close)

	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000, AppRequestTimeout: 5 * time.Second}
	sessions := shared.NewSessionManager(redisClient, "gestionrh_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	engine, err := view.NewEngine()
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	responder := view.NewResponder(engine, csrf, apierr.NewHandler(nil, view.FlashNotifier{}, logger).WithObserver(metrics), logger)
	guard := rbac.Middleware{Logger: logger, Denied: responder.Forbidden}
	client := hrapi.NewClient(hrapi.Config{BaseURL: api.URL}, logger)
	cache := querycache.New(redisClient, querycache.Options{Logger: logger})

	deps := console.Deps{Logger: logger, API: client, Cache: cache, Responder: responder, RBAC: guard}
	return NewRouter(RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessions,
		CSRFManager:          csrf,
		Responder:            responder,
		AuthHandler:          auth.NewHandler(logger, auth.NewService(client, nil), responder, guard),
		DashboardHandler:     dashboard.NewHandler(deps),
		EmployeesHandler:     employees.NewHandler(deps),
		LeavesHandler:        leaves.NewHandler(deps, nil),
		DepartmentsHandler:   departments.NewHandler(deps),
		PositionsHandler:     positions.NewHandler(deps),
		NotificationsHandler: notifications.NewHandler(deps),
		LiveHandler:          live.NewHandler(live.Options{Sessions: sessions, Invalidator: cache, Logger: logger}),
		JobHandler:           jobs.NewHandler(nil, nil, responder, nil, logger),
		Metrics:              metrics,
	})
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{"health", "/healthz", http.StatusOK, `"status":"ok"`},
		{"metrics", "/metrics", http.StatusOK, "go_goroutines"},
		{"static", "/static/js/live.js", http.StatusOK, "WebSocket"},
		{"login", "/auth/login", http.StatusOK, "<form"},
		{"live info", "/live/info", http.StatusOK, "websocket"},
		{"queue health", "/jobs/health", http.StatusOK, `"queue":"default"`},
		{"not found", "/inconnu", http.StatusNotFound, "404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := httptest.NewRecorder()
			router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, res.Code)
			assert.Contains(t, res.Body.String(), tt.contains)
		})
	}
}

func TestRouterRedirectsAnonymousUsers(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/", "/conges", "/employes", "/notifications", "/profil"} {
		res := httptest.NewRecorder()
		router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusSeeOther, res.Code, path)
		assert.True(t, strings.HasPrefix(res.Header().Get("Location"), rbac.LoginPath), path)
	}
}

func TestRouterRejectsPostWithoutCSRF(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("email=a%40b.fr&password=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRouterSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	assert.Contains(t, res.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.NotEmpty(t, res.Header().Get("Set-Cookie"))
}
