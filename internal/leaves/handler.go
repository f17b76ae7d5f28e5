package leaves

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/rbac"
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

const createModule = "conges.create"

// Handler serves leave requests, approvals and the audit trail.
type Handler struct {
	deps        console.Deps
	policy      authz.Policy
	idempotency *shared.IdempotencyStore
	validator   *validator.Validate
	now         func() time.Time
}

// NewHandler constructs the leave handler. A nil idempotency store disables
// double-submit protection.
func NewHandler(deps console.Deps, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{
		deps:        deps,
		policy:      authz.DefaultPolicy,
		idempotency: idempotency,
		validator:   view.NewValidator(),
		now:         time.Now,
	}
}

// MountRoutes registers leave routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.deps.RBAC.RequireAuth)
		r.Get("/", h.mine)
		r.Get("/nouveau", h.newForm)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Post("/{id}/annuler", h.cancel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.deps.RBAC.RequireRoles(rbac.Approvers...))
		r.Get("/validation", h.approvals)
		r.Post("/{id}/valider", h.validate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.deps.RBAC.RequireRoles(rbac.Staff...))
		r.Get("/audit", h.audit)
		r.Get("/toutes", h.all)
	})
	r.Route("/types", func(r chi.Router) {
		r.Use(h.deps.RBAC.RequireRoles(rbac.Admins...))
		r.Get("/", h.types)
		r.Get("/nouveau", h.newType)
		r.Post("/", h.createType)
		r.Get("/{id}/modifier", h.editType)
		r.Post("/{id}", h.updateType)
		r.Post("/{id}/supprimer", h.deleteType)
	})
}

type minePageData struct {
	Leaves   []hrapi.Leave
	Balances []hrapi.LeaveBalance
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	leavesKey := rq.UserKey("conges", "mes-conges")
	balancesKey := rq.UserKey("conges", "soldes")
	leaves, err := querycache.Get(r.Context(), h.deps.Cache, leavesKey, rq.Background.MyLeaves)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	balances, err := querycache.Get(r.Context(), h.deps.Cache, balancesKey, rq.Background.MyBalances)
	if err != nil {
		h.deps.Responder.Errors().Handle(r.Context(), err)
		if rq.Session.Expired() {
			http.Redirect(w, r, view.LoginPath, http.StatusSeeOther)
			return
		}
	}
	sortByStartDesc(leaves)
	page := h.deps.Responder.Page(r, "Mes congés", minePageData{Leaves: leaves, Balances: balances})
	page.Live = h.deps.Live("mes-conges", leavesKey, balancesKey)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/leaves.html", page)
}

type leaveForm struct {
	Type           string `form:"type" validate:"required"`
	DateDebut      string `form:"dateDebut" validate:"required,datetime=2006-01-02"`
	DateFin        string `form:"dateFin" validate:"required,datetime=2006-01-02"`
	Motif          string `form:"motif" validate:"max=500"`
	IdempotencyKey string `form:"idempotency_key"`
}

type formPageData struct {
	Form   leaveForm
	Types  []hrapi.LeaveType
	Errors map[string]string
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, leaveForm{IdempotencyKey: uuid.NewString()}, nil)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, form leaveForm, errs map[string]string) {
	rq := h.deps.For(r)
	types, err := querycache.Get(r.Context(), h.deps.Cache, console.KeyLeaveTypes, rq.Background.LeaveTypes)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/conges")
		return
	}
	data := formPageData{Form: form, Types: types, Errors: errs}
	h.deps.Responder.Render(w, r, status, "pages/leave_new.html", h.deps.Responder.Page(r, "Nouvelle demande", data))
}

// ValidateDates checks the chronology of a leave request.
func ValidateDates(start, end string, today time.Time) map[string]string {
	errs := map[string]string{}
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		errs["dateDebut"] = "Date invalide (AAAA-MM-JJ)"
		return errs
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		errs["dateFin"] = "Date invalide (AAAA-MM-JJ)"
		return errs
	}
	y, m, d := today.Date()
	if from.Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)) {
		errs["dateDebut"] = "La date de début ne peut pas être dans le passé"
	}
	if to.Before(from) {
		errs["dateFin"] = "La date de fin doit suivre la date de début"
	}
	return errs
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	rq := h.deps.For(r)
	form := leaveForm{
		Type:           strings.TrimSpace(r.PostFormValue("type")),
		DateDebut:      r.PostFormValue("dateDebut"),
		DateFin:        r.PostFormValue("dateFin"),
		Motif:          strings.TrimSpace(r.PostFormValue("motif")),
		IdempotencyKey: r.PostFormValue("idempotency_key"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.renderForm(w, r, http.StatusBadRequest, form, view.FormErrors(err))
		return
	}
	if errs := ValidateDates(form.DateDebut, form.DateFin, h.now()); len(errs) > 0 {
		h.renderForm(w, r, http.StatusBadRequest, form, errs)
		return
	}

	if h.idempotency != nil && form.IdempotencyKey != "" {
		err := h.idempotency.CheckAndInsert(r.Context(), form.IdempotencyKey, createModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			h.deps.Responder.Redirect(w, r, "/conges", view.Flash(view.FlashInfo, "Cette demande a déjà été envoyée"))
			return
		}
		if err != nil {
			h.deps.Logger.Warn("idempotency check", slog.Any("error", err))
		}
	}

	leave, err := rq.API.CreateLeave(r.Context(), hrapi.CreateLeaveRequest{
		DateDebut: form.DateDebut,
		DateFin:   form.DateFin,
		Type:      form.Type,
		Motif:     form.Motif,
	})
	if err != nil {
		h.releaseKey(r, form.IdempotencyKey)
		if apierr.IsStatus(err, http.StatusBadRequest) {
			errs := h.deps.Responder.Errors().HandleValidation(r.Context(), err)
			h.renderForm(w, r, http.StatusBadRequest, form, errs)
			return
		}
		h.deps.Responder.APIFailure(w, r, err, "/conges")
		return
	}
	h.deps.Record(r.Context(), rq.User, "leave.create", "conge", leave.ID, map[string]any{
		"type":      form.Type,
		"dateDebut": form.DateDebut,
		"dateFin":   form.DateFin,
	})
	h.deps.Invalidate(r.Context(), "conges", "notifications")
	h.deps.Responder.Redirect(w, r, "/conges", view.Flash(view.FlashSuccess, "Demande de congé envoyée"))
}

func (h *Handler) releaseKey(r *http.Request, key string) {
	if h.idempotency == nil || key == "" {
		return
	}
	if err := h.idempotency.Delete(r.Context(), key); err != nil {
		h.deps.Logger.Warn("release idempotency key", slog.Any("error", err))
	}
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := rq.API.CancelLeave(r.Context(), id); err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/conges")
		return
	}
	h.deps.Record(r.Context(), rq.User, "leave.cancel", "conge", id, nil)
	h.deps.Invalidate(r.Context(), "conges", "notifications")
	h.deps.Responder.Redirect(w, r, "/conges", view.Flash(view.FlashSuccess, "Demande annulée"))
}

type showPageData struct {
	Leave      hrapi.Leave
	History    []hrapi.LeaveHistoryEntry
	CanApprove bool
	IsOwner    bool
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	leave, err := rq.API.Leave(r.Context(), id)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/conges")
		return
	}
	history, err := rq.API.LeaveHistory(r.Context(), id)
	if err != nil {
		h.deps.Responder.Errors().Handle(r.Context(), err, apierr.WithoutToast())
	}
	data := showPageData{
		Leave:      *leave,
		History:    history,
		CanApprove: leave.Statut == hrapi.LeavePending && h.policy.CanApproveLeaveFor(rq.User, leave.EmployeDepartement),
		IsOwner:    rq.User != nil && strings.EqualFold(rq.User.Email, leave.EmployeEmail),
	}
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/leave.html", h.deps.Responder.Page(r, "Demande de congé", data))
}

// Approvable keeps the pending leaves u may decide on.
func Approvable(u *authz.User, policy authz.Policy, pending []hrapi.Leave) []hrapi.Leave {
	out := make([]hrapi.Leave, 0, len(pending))
	for _, l := range pending {
		if l.Statut != "" && l.Statut != hrapi.LeavePending {
			continue
		}
		if u != nil && strings.EqualFold(u.Email, l.EmployeEmail) {
			continue
		}
		if policy.CanApproveLeaveFor(u, l.EmployeDepartement) {
			out = append(out, l)
		}
	}
	return out
}

type approvalsPageData struct {
	Leaves []hrapi.Leave
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	key := rq.UserKey("conges", "en-attente")
	pending, err := querycache.Get(r.Context(), h.deps.Cache, key, rq.Background.PendingLeaves)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	leaves := Approvable(rq.User, h.policy, pending)
	sortByStartDesc(leaves)
	page := h.deps.Responder.Page(r, "Validation des congés", approvalsPageData{Leaves: leaves})
	page.Live = h.deps.Live("validation", key)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/approvals.html", page)
}

type decisionForm struct {
	Decision    string `form:"decision" validate:"required,oneof=APPROUVE REJETE"`
	Commentaire string `form:"commentaire" validate:"max=500"`
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := decisionForm{
		Decision:    r.PostFormValue("decision"),
		Commentaire: strings.TrimSpace(r.PostFormValue("commentaire")),
	}
	back := "/conges/validation"
	if err := h.validator.Struct(form); err != nil {
		h.deps.Responder.Redirect(w, r, back, view.Flash(view.FlashError, "Décision invalide"))
		return
	}
	if form.Decision == string(hrapi.LeaveRejected) && form.Commentaire == "" {
		h.deps.Responder.Redirect(w, r, back, view.Flash(view.FlashError, "Un commentaire est requis pour un refus"))
		return
	}

	leave, err := rq.API.Leave(r.Context(), id)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, back)
		return
	}
	if !h.policy.CanApproveLeaveFor(rq.User, leave.EmployeDepartement) {
		h.deps.Responder.Forbidden(w, r)
		return
	}
	if _, err := rq.API.ValidateLeave(r.Context(), id, hrapi.ValidateLeaveRequest{
		Statut:      hrapi.LeaveStatus(form.Decision),
		Commentaire: form.Commentaire,
	}); err != nil {
		h.deps.Responder.APIFailure(w, r, err, back)
		return
	}
	h.deps.Record(r.Context(), rq.User, "leave.validate", "conge", id, map[string]any{
		"statut":      form.Decision,
		"employe":     leave.EmployeEmail,
		"departement": leave.EmployeDepartement,
	})
	h.deps.Invalidate(r.Context(), "conges", "notifications", "departements")
	message := "Demande approuvée"
	if form.Decision == string(hrapi.LeaveRejected) {
		message = "Demande rejetée"
	}
	h.deps.Responder.Redirect(w, r, back, view.Flash(view.FlashSuccess, message))
}

type auditPageData struct {
	Entries    []hrapi.LeaveHistoryEntry
	Filter     auditFilterForm
	Statuses   []hrapi.LeaveStatus
	Pagination shared.Pagination
}

type auditFilterForm struct {
	Acteur    string
	Statut    string
	DateDebut string
	DateFin   string
	CongeID   string
}

// AuditFilterFromQuery reads the audit trail filters and the 1-based page.
func AuditFilterFromQuery(r *http.Request) (hrapi.AuditFilter, auditFilterForm, int) {
	q := r.URL.Query()
	form := auditFilterForm{
		Acteur:    strings.TrimSpace(q.Get("acteur")),
		Statut:    q.Get("statut"),
		DateDebut: q.Get("dateDebut"),
		DateFin:   q.Get("dateFin"),
		CongeID:   q.Get("congeId"),
	}
	filter := hrapi.AuditFilter{
		Acteur:        form.Acteur,
		StatutNouveau: hrapi.LeaveStatus(form.Statut),
		DateDebut:     form.DateDebut,
		DateFin:       form.DateFin,
	}
	if id, err := strconv.ParseInt(form.CongeID, 10, 64); err == nil && id > 0 {
		filter.CongeID = id
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	return filter, form, page
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	if !authz.DataAccessFor(rq.User).ViewAuditTrail {
		h.deps.Responder.Forbidden(w, r)
		return
	}
	filter, form, page := AuditFilterFromQuery(r)
	result, err := rq.API.AuditHistory(r.Context(), page-1, shared.DefaultPerPage, filter)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	pagination := shared.NewPagination(result.CurrentPage+1, shared.DefaultPerPage, int(result.TotalElements))
	data := auditPageData{
		Entries:    result.Content,
		Filter:     form,
		Statuses:   []hrapi.LeaveStatus{hrapi.LeavePending, hrapi.LeaveApproved, hrapi.LeaveRejected, hrapi.LeaveCancelled},
		Pagination: pagination,
	}
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/audit.html", h.deps.Responder.Page(r, "Historique des congés", data))
}

// LeaveFilter narrows the staff view of every leave request.
type LeaveFilter struct {
	Query  string
	Statut hrapi.LeaveStatus
}

// FilterLeaves applies f, newest start date first.
func FilterLeaves(leaves []hrapi.Leave, f LeaveFilter) []hrapi.Leave {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]hrapi.Leave, 0, len(leaves))
	for _, l := range leaves {
		if f.Statut != "" && l.Statut != f.Statut {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(l.EmployeNom), q) &&
			!strings.Contains(strings.ToLower(l.EmployeEmail), q) &&
			!strings.Contains(strings.ToLower(l.EmployeDepartement), q) {
			continue
		}
		out = append(out, l)
	}
	sortByStartDesc(out)
	return out
}

type allPageData struct {
	Leaves     []hrapi.Leave
	Filter     LeaveFilter
	Statuses   []hrapi.LeaveStatus
	Pagination shared.Pagination
}

func (h *Handler) all(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	key := rq.UserKey("conges", "all")
	leaves, err := querycache.Get(r.Context(), h.deps.Cache, key, rq.Background.AllLeaves)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	q := r.URL.Query()
	filter := LeaveFilter{Query: strings.TrimSpace(q.Get("q")), Statut: hrapi.LeaveStatus(q.Get("statut"))}
	rows := FilterLeaves(leaves, filter)
	pagination := shared.PaginationFromQuery(q, len(rows))
	data := allPageData{
		Leaves:     shared.PageSlice(rows, pagination),
		Filter:     filter,
		Statuses:   []hrapi.LeaveStatus{hrapi.LeavePending, hrapi.LeaveApproved, hrapi.LeaveRejected, hrapi.LeaveCancelled},
		Pagination: pagination,
	}
	page := h.deps.Responder.Page(r, "Toutes les demandes", data)
	page.Live = h.deps.Live("conges-toutes", key)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/leaves_all.html", page)
}

func sortByStartDesc(leaves []hrapi.Leave) {
	slices.SortStableFunc(leaves, func(a, b hrapi.Leave) int {
		return strings.Compare(b.DateDebut, a.DateDebut)
	})
}
