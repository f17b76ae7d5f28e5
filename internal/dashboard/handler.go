package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/leaves"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/rbac"
)

// Handler renders the home page of a signed-in user.
type Handler struct {
	deps   console.Deps
	policy authz.Policy
}

// NewHandler constructs the dashboard handler.
func NewHandler(deps console.Deps) *Handler {
	return &Handler{deps: deps, policy: authz.DefaultPolicy}
}

// MountRoutes registers the dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.deps.RBAC.RequireAuth).Get("/", h.home)
}

type homeData struct {
	Balances        []hrapi.LeaveBalance
	Unread          int
	PendingApproval int
	IsApprover      bool
	Department      string
	CanViewStats    bool
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	data := homeData{
		IsApprover:   authz.HasAnyRole(rq.User, rbac.Approvers...),
		Department:   rq.User.Department,
		CanViewStats: h.policy.CanViewDepartmentStats(rq.User, rq.User.Department),
	}

	balancesKey := rq.UserKey("conges", "soldes")
	unreadKey := rq.UserKey("notifications", "compteur")
	keys := []string{balancesKey, unreadKey}

	balances, err := querycache.Get(r.Context(), h.deps.Cache, balancesKey, rq.Background.MyBalances)
	if !h.soft(w, r, rq, err) {
		return
	}
	data.Balances = balances

	unread, err := querycache.Get(r.Context(), h.deps.Cache, unreadKey, rq.Background.UnreadCount)
	if !h.soft(w, r, rq, err) {
		return
	}
	data.Unread = unread

	if data.IsApprover {
		pendingKey := rq.UserKey("conges", "en-attente")
		keys = append(keys, pendingKey)
		pending, err := querycache.Get(r.Context(), h.deps.Cache, pendingKey, rq.Background.PendingLeaves)
		if !h.soft(w, r, rq, err) {
			return
		}
		data.PendingApproval = len(leaves.Approvable(rq.User, h.policy, pending))
	}

	page := h.deps.Responder.Page(r, "Tableau de bord", data)
	page.Live = h.deps.Live("tableau-de-bord", keys...)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/home.html", page)
}

// soft reports a failed widget without failing the page, unless the API
// session ended.
func (h *Handler) soft(w http.ResponseWriter, r *http.Request, rq console.Request, err error) bool {
	if err == nil {
		return true
	}
	h.deps.Responder.Errors().Handle(r.Context(), err)
	if rq.Session.Expired() {
		http.Redirect(w, r, rbac.LoginPath, http.StatusSeeOther)
		return false
	}
	return true
}
