package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/rbac"
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	responder *view.Responder
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, responder *view.Responder, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		responder: responder,
		rbac:      guard,
		validator: view.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// MountProfile registers the profile page.
func (h *Handler) MountProfile(r chi.Router) {
	r.With(h.rbac.RequireAuth).Get("/", h.showProfile)
}

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"next"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if rbac.CurrentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := loginPageData{Form: loginForm{Next: r.URL.Query().Get("next")}}
	h.responder.Render(w, r, http.StatusOK, "pages/login.html", h.responder.Page(r, "Connexion", data))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Next:     r.PostFormValue("next"),
	}

	errs := map[string]string{}
	status := http.StatusBadRequest
	if err := h.validator.Struct(form); err != nil {
		errs = view.FormErrors(err)
	} else {
		login, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err == nil && sess != nil {
			user := login.Profile.User()
			sess.SignIn(user, login.Token, login.ExpiresAt)
			sess.AddFlash(shared.FlashMessage{Kind: view.FlashSuccess, Message: "Bienvenue " + displayName(user)})
			if err := h.service.RegisterSession(r.Context(), sess.ID, user.Email, login.ExpiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
				h.logger.Warn("register session", slog.Any("error", err))
			}
			http.Redirect(w, r, rbac.SafeNext(form.Next), http.StatusSeeOther)
			return
		}
		if err == nil {
			h.logger.Error("session missing during login")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		errs["general"] = h.responder.Errors().Handle(r.Context(), err, apierr.WithoutToast())
		if code := apierr.StatusOf(err); code == 0 || code >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
	}

	form.Password = ""
	h.responder.Render(w, r, status, "pages/login.html", h.responder.Page(r, "Connexion", loginPageData{Form: form, Errors: errs}))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if sess.Authenticated() {
			if err := h.service.Logout(r.Context(), sess); err != nil {
				h.responder.Errors().Handle(r.Context(), err, apierr.WithoutToast())
			}
		}
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		sess.SignOut()
	}
	http.Redirect(w, r, rbac.LoginPath, http.StatusSeeOther)
}

type profilePageData struct {
	Profile    *hrProfile
	Visibility authz.FieldVisibility
	Sessions   []SessionRecord
}

type hrProfile struct {
	Email       string
	Name        string
	Telephone   string
	Departement string
	Poste       string
	Roles       []authz.Role
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	profile, err := h.service.Profile(r.Context(), sess)
	if err != nil {
		h.responder.APIFailure(w, r, err, "/")
		return
	}
	user := profile.User()
	sessions, err := h.service.RecentSessions(r.Context(), user.Email)
	if err != nil {
		h.logger.Warn("list sessions", slog.Any("error", err))
	}
	data := profilePageData{
		Profile: &hrProfile{
			Email:       profile.Email,
			Name:        user.Name,
			Telephone:   profile.Telephone,
			Departement: profile.Departement,
			Poste:       profile.Poste,
			Roles:       user.Roles,
		},
		Visibility: authz.FieldVisibilityFor(sess.User()),
		Sessions:   sessions,
	}
	h.responder.Render(w, r, http.StatusOK, "pages/profile.html", h.responder.Page(r, "Mon profil", data))
}

func displayName(u *authz.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
