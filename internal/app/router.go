package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gestionrh/gestionrh-console/internal/auth"
	"github.com/gestionrh/gestionrh-console/internal/dashboard"
	"github.com/gestionrh/gestionrh-console/internal/departments"
	"github.com/gestionrh/gestionrh-console/internal/employees"
	"github.com/gestionrh/gestionrh-console/internal/leaves"
	"github.com/gestionrh/gestionrh-console/internal/live"
	"github.com/gestionrh/gestionrh-console/internal/notifications"
	"github.com/gestionrh/gestionrh-console/internal/observability"
	"github.com/gestionrh/gestionrh-console/internal/positions"
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/internal/view"
	"github.com/gestionrh/gestionrh-console/jobs"
	"github.com/gestionrh/gestionrh-console/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Responder      *view.Responder

	AuthHandler          *auth.Handler
	DashboardHandler     *dashboard.Handler
	EmployeesHandler     *employees.Handler
	LeavesHandler        *leaves.Handler
	DepartmentsHandler   *departments.Handler
	PositionsHandler     *positions.Handler
	NotificationsHandler *notifications.Handler
	LiveHandler          *live.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	mwConfig := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := web.Static()
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		registerAssetTypes(params.Logger)
		r.Handle("/static/*", staticHandler(staticFS))
	}

	if params.Responder != nil {
		r.NotFound(chi.Chain(MiddlewareStack(mwConfig)...).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params.Responder.RenderError(w, r, http.StatusNotFound)
		}).ServeHTTP)
	}

	if params.LiveHandler != nil {
		r.Group(func(r chi.Router) {
			for _, mw := range LiveMiddlewareStack(mwConfig) {
				r.Use(mw)
			}
			r.Handle(live.Prefix+"/*", params.LiveHandler)
		})
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(mwConfig) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		if params.DashboardHandler != nil {
			params.DashboardHandler.MountRoutes(r)
		}
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/profil", params.AuthHandler.MountProfile)
		if params.EmployeesHandler != nil {
			r.Route("/employes", params.EmployeesHandler.MountRoutes)
		}
		if params.LeavesHandler != nil {
			r.Route("/conges", params.LeavesHandler.MountRoutes)
		}
		if params.DepartmentsHandler != nil {
			r.Route("/departements", params.DepartmentsHandler.MountRoutes)
		}
		if params.PositionsHandler != nil {
			r.Route("/postes", params.PositionsHandler.MountRoutes)
		}
		if params.NotificationsHandler != nil {
			r.Route("/notifications", params.NotificationsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
