package notifications

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/platform/httpx"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

const listPath = "/notifications"

// Handler serves in-app notifications.
type Handler struct {
	deps console.Deps
}

// NewHandler constructs the notifications handler.
func NewHandler(deps console.Deps) *Handler {
	return &Handler{deps: deps}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.deps.RBAC.RequireAuth)
	r.Get("/", h.list)
	r.Get("/non-lues", h.unread)
	r.Post("/tout-lire", h.markAll)
	r.Post("/{id}/lue", h.markRead)
	r.Post("/{id}/supprimer", h.remove)
	r.Get("/preferences", h.preferences)
	r.Post("/preferences", h.savePreferences)
	r.Post("/preferences/test", h.testChannel)
}

type listPageData struct {
	Notifications []hrapi.Notification
	Unread        int
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	key := rq.UserKey("notifications", "liste")
	items, err := querycache.Get(r.Context(), h.deps.Cache, key, rq.Background.Notifications)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	slices.SortStableFunc(items, func(a, b hrapi.Notification) int { return strings.Compare(b.DateCreation, a.DateCreation) })
	unread := 0
	for _, n := range items {
		if !n.Lue {
			unread++
		}
	}
	page := h.deps.Responder.Page(r, "Notifications", listPageData{Notifications: items, Unread: unread})
	page.Live = h.deps.Live("notifications", key)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/notifications.html", page)
}

type unreadResponse struct {
	Count int `json:"count"`
}

func (h *Handler) unread(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	key := rq.UserKey("notifications", "compteur")
	count, err := querycache.Get(r.Context(), h.deps.Cache, key, rq.Background.UnreadCount)
	if err != nil {
		httpx.APIProblem(w, err, h.deps.Responder.Errors().Handle(r.Context(), err, apierr.WithoutToast()))
		return
	}
	httpx.JSON(w, http.StatusOK, unreadResponse{Count: count})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := rq.API.MarkNotificationRead(r.Context(), id); err != nil {
		h.deps.Responder.APIFailure(w, r, err, listPath)
		return
	}
	h.deps.Invalidate(r.Context(), rq.UserKey("notifications", "liste"), rq.UserKey("notifications", "compteur"))
	h.deps.Responder.Redirect(w, r, listPath, nil)
}

func (h *Handler) markAll(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	n, err := rq.API.MarkAllNotificationsRead(r.Context())
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, listPath)
		return
	}
	h.deps.Invalidate(r.Context(), rq.UserKey("notifications", "liste"), rq.UserKey("notifications", "compteur"))
	message := "Toutes les notifications sont lues"
	if n == 0 {
		message = "Aucune notification non lue"
	}
	h.deps.Responder.Redirect(w, r, listPath, view.Flash(view.FlashSuccess, message))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := rq.API.DeleteNotification(r.Context(), id); err != nil {
		h.deps.Responder.APIFailure(w, r, err, listPath)
		return
	}
	h.deps.Invalidate(r.Context(), rq.UserKey("notifications", "liste"), rq.UserKey("notifications", "compteur"))
	h.deps.Responder.Redirect(w, r, listPath, view.Flash(view.FlashSuccess, "Notification supprimée"))
}
