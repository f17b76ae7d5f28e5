// Package console holds the dependencies and helpers shared by the page
// handlers of the HR console.
package console

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/rbac"
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

// Shared reference data keys, filled by the warmup job.
const (
	KeyDepartments = "departements"
	KeyJobs        = "postes"
	KeyLeaveTypes  = "conges:types"
)

// Deps bundles what every console handler needs.
type Deps struct {
	Logger       *slog.Logger
	API          *hrapi.Client
	Cache        *querycache.Cache
	Responder    *view.Responder
	RBAC         rbac.Middleware
	Journal      *shared.AuditLogger
	LiveInterval time.Duration
}

// Request is the per-request view of Deps: the session, its user and API
// callers bound to the session credentials.
type Request struct {
	Session *shared.Session
	User    *authz.User
	// API expires the request session on 401.
	API *hrapi.Caller
	// Background is used by cached loaders, which may run after the request.
	Background *hrapi.Caller
}

// For binds the request's session to the API client.
func (d Deps) For(r *http.Request) Request {
	sess := shared.SessionFromContext(r.Context())
	req := Request{Session: sess, User: sess.User()}
	if sess != nil {
		req.API = d.API.For(sess)
		req.Background = d.API.For(sess.Detached())
	}
	return req
}

// UserKey scopes a cache key to the request user.
func (rq Request) UserKey(parts ...string) string {
	email := ""
	if rq.User != nil {
		email = rq.User.Email
	}
	return querycache.UserKey(email, parts...)
}

// Invalidate drops cached queries after a mutation. Failures are logged only.
func (d Deps) Invalidate(ctx context.Context, keys ...string) {
	if err := d.Cache.Invalidate(ctx, keys...); err != nil {
		d.Logger.Warn("invalidate queries", slog.Any("keys", keys), slog.Any("error", err))
	}
}

// Record journals a console action. A missing journal is a no-op.
func (d Deps) Record(ctx context.Context, user *authz.User, action, entity string, id int64, meta map[string]any) {
	if d.Journal == nil || user == nil {
		return
	}
	err := d.Journal.Record(ctx, shared.AuditLog{
		ActorID:    user.ID,
		ActorEmail: user.Email,
		Action:     action,
		Entity:     entity,
		EntityID:   strconv.FormatInt(id, 10),
		Meta:       meta,
	})
	if err != nil {
		d.Logger.Warn("journal action", slog.String("action", action), slog.Any("error", err))
	}
}

// Live describes a polled view of the page.
func (d Deps) Live(name string, keys ...string) *view.LiveView {
	interval := d.LiveInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &view.LiveView{Name: name, Keys: keys, IntervalMS: interval.Milliseconds(), Enabled: true}
}

// IDParam parses a numeric URL parameter.
func IDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
