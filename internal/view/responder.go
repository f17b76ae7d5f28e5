package view

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/shared"
)

// LoginPath is where signed-out users are sent.
const LoginPath = "/auth/login"

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = apierr.NotifyError
	FlashInfo    = "info"
)

// FlashNotifier delivers classified API errors as flash messages on the
// session carried by the context.
type FlashNotifier struct{}

// Notify implements apierr.Notifier.
func (FlashNotifier) Notify(ctx context.Context, kind, text string) {
	if sess := shared.SessionFromContext(ctx); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: text})
	}
}

// Responder bundles the helpers every page handler needs.
type Responder struct {
	engine *Engine
	csrf   *shared.CSRFManager
	errors *apierr.Handler
	logger *slog.Logger
}

// NewResponder constructs a Responder.
func NewResponder(engine *Engine, csrf *shared.CSRFManager, errors *apierr.Handler, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{engine: engine, csrf: csrf, errors: errors, logger: logger}
}

// Errors exposes the API error handler.
func (rs *Responder) Errors() *apierr.Handler { return rs.errors }

// Page builds the common template data for the current request.
func (rs *Responder) Page(r *http.Request, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if sess == nil {
		return td
	}
	if token, err := rs.csrf.EnsureToken(r.Context(), sess); err == nil {
		td.CSRFToken = token
	}
	td.User = sess.User()
	td.Nav = Navigation(td.User, r.URL.Path)
	td.Flashes = sess.PopFlashes()
	return td
}

// Render writes a page with the given status.
func (rs *Responder) Render(w http.ResponseWriter, r *http.Request, status int, name string, data TemplateData) {
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	if err := rs.engine.Render(w, name, data); err != nil {
		rs.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		if status == http.StatusOK {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// Redirect queues an optional flash and redirects with 303.
func (rs *Responder) Redirect(w http.ResponseWriter, r *http.Request, target string, flash *shared.FlashMessage) {
	if flash != nil {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			sess.AddFlash(*flash)
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Flash is a shorthand for a flash message.
func Flash(kind, message string) *shared.FlashMessage {
	return &shared.FlashMessage{Kind: kind, Message: message}
}

// APIFailure reports a failed API call. When the call ended the API session
// the user goes back to the login page; otherwise the classified message is
// flashed and the user is redirected to fallback.
func (rs *Responder) APIFailure(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	rs.errors.Handle(r.Context(), err)
	if sess := shared.SessionFromContext(r.Context()); sess.Expired() {
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	}
	if fallback == "" || fallback == r.URL.Path {
		rs.RenderError(w, r, apierr.StatusOf(err))
		return
	}
	http.Redirect(w, r, fallback, http.StatusSeeOther)
}

// RenderError renders the error page. The flash queue carries the message.
func (rs *Responder) RenderError(w http.ResponseWriter, r *http.Request, status int) {
	if status < http.StatusBadRequest {
		status = http.StatusBadGateway
	}
	rs.Render(w, r, status, "pages/error.html", rs.Page(r, "Erreur", map[string]any{"Status": status}))
}

// Forbidden renders the access-denied page.
func (rs *Responder) Forbidden(w http.ResponseWriter, r *http.Request) {
	rs.Render(w, r, http.StatusForbidden, "pages/forbidden.html", rs.Page(r, "Accès refusé", nil))
}
