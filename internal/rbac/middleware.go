// Package rbac guards console routes by the roles of the signed-in user. The
// guards only shape navigation; the GestionRH API authorizes every call.
package rbac

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/shared"
)

// LoginPath is the redirect target for anonymous requests.
const LoginPath = "/auth/login"

// Role groups of the console route matrix.
var (
	Staff     = []authz.Role{authz.RoleAdmin, authz.RoleRH}
	Approvers = []authz.Role{authz.RoleAdmin, authz.RoleRH, authz.RoleManager}
	Admins    = []authz.Role{authz.RoleAdmin}
)

// Middleware wires role guards for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
	// Denied renders the response for authenticated users lacking a role.
	Denied http.HandlerFunc
}

// RequireAuth redirects anonymous users to the login page, keeping the
// requested path so they return to it after signing in.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r) == nil {
			target := LoginPath
			if r.Method == http.MethodGet && r.URL.Path != "/" {
				target += "?next=" + url.QueryEscape(r.URL.RequestURI())
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles ensures the current user has at least one of roles. Anonymous
// users are redirected like RequireAuth.
func (m Middleware) RequireRoles(roles ...authz.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r)
			if authz.HasAnyRole(user, roles...) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied", slog.String("path", r.URL.Path), slog.String("user", user.Email))
			}
			m.deny(w, r)
		}))
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request) {
	if m.Denied != nil {
		m.Denied(w, r)
		return
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// CurrentUser returns the signed-in user of the request, or nil.
func CurrentUser(r *http.Request) *authz.User {
	return shared.SessionFromContext(r.Context()).User()
}

// SafeNext returns next when it is a local path, otherwise "/".
func SafeNext(next string) string {
	if next == "" || next[0] != '/' || (len(next) > 1 && (next[1] == '/' || next[1] == '\\')) {
		return "/"
	}
	return next
}
