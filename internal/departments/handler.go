package departments

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/rbac"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

// Handler serves departments and their leave statistics.
type Handler struct {
	deps      console.Deps
	policy    authz.Policy
	validator *validator.Validate
}

// NewHandler constructs the department handler.
func NewHandler(deps console.Deps) *Handler {
	return &Handler{deps: deps, policy: authz.DefaultPolicy, validator: view.NewValidator()}
}

// MountRoutes registers department routes.
func (h *Handler) MountRoutes(r chi.Router) {
	staff := r.With(h.deps.RBAC.RequireRoles(rbac.Staff...))
	staff.Get("/", h.list)
	staff.Get("/nouveau", h.newForm)
	staff.Post("/", h.create)
	staff.Get("/{id}/modifier", h.edit)
	staff.Post("/{id}", h.update)
	r.With(h.deps.RBAC.RequireAuth).Get("/stats/{nom}", h.stats)
}

type listRow struct {
	hrapi.Department
	CanViewStats bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	departments, err := querycache.Get(r.Context(), h.deps.Cache, console.KeyDepartments, rq.Background.Departments)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	slices.SortFunc(departments, func(a, b hrapi.Department) int { return strings.Compare(a.Nom, b.Nom) })
	rows := make([]listRow, 0, len(departments))
	for _, d := range departments {
		rows = append(rows, listRow{Department: d, CanViewStats: h.policy.CanViewDepartmentStats(rq.User, d.Nom)})
	}
	page := h.deps.Responder.Page(r, "Départements", rows)
	page.Live = h.deps.Live("departements", console.KeyDepartments)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/departments.html", page)
}

// BalanceRow is one leave balance of an employee in the department statistics.
type BalanceRow struct {
	Employe  string
	Email    string
	Type     string
	Restants float64
	Annee    int
}

// Stats aggregates the balances of one department.
type Stats struct {
	Department string
	Rows       []BalanceRow
	Employees  int
}

// BuildStats keeps the employees of department and flattens their balances.
// Employees without any balance still count.
func BuildStats(department string, balances []hrapi.DepartmentBalance) Stats {
	stats := Stats{Department: department}
	for _, b := range balances {
		if !strings.EqualFold(b.Departement, department) {
			continue
		}
		stats.Employees++
		for _, s := range b.Soldes {
			stats.Rows = append(stats.Rows, BalanceRow{
				Employe:  b.EmployeNom,
				Email:    b.EmployeEmail,
				Type:     s.TypeCongeNom,
				Restants: s.JoursRestants,
				Annee:    s.Annee,
			})
		}
	}
	slices.SortStableFunc(stats.Rows, func(a, b BalanceRow) int {
		if c := strings.Compare(a.Employe, b.Employe); c != 0 {
			return c
		}
		return strings.Compare(a.Type, b.Type)
	})
	return stats
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	name, err := url.PathUnescape(chi.URLParam(r, "nom"))
	if err != nil || name == "" {
		http.NotFound(w, r)
		return
	}
	if !h.policy.CanViewDepartmentStats(rq.User, name) {
		h.deps.Responder.Forbidden(w, r)
		return
	}
	key := rq.UserKey("departements", "soldes")
	balances, err := querycache.Get(r.Context(), h.deps.Cache, key, rq.Background.DepartmentBalances)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	page := h.deps.Responder.Page(r, "Statistiques "+name, BuildStats(name, balances))
	page.Live = h.deps.Live("departement-stats", key)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/department_stats.html", page)
}

// Form is the department create and edit form.
type Form struct {
	Nom         string `form:"nom" validate:"required,max=100"`
	Description string `form:"description" validate:"omitempty,max=500"`
	ManagerID   string `form:"managerId" validate:"omitempty,numeric"`
}

// FormFrom prefills the form from a department.
func FormFrom(d hrapi.Department) Form {
	form := Form{Nom: d.Nom, Description: d.Description}
	if d.ManagerID != nil {
		form.ManagerID = strconv.FormatInt(*d.ManagerID, 10)
	}
	return form
}

// Request converts a validated form. An empty or zero manager clears it.
func (f Form) Request() hrapi.DepartmentRequest {
	in := hrapi.DepartmentRequest{Nom: f.Nom, Description: f.Description}
	if id, err := strconv.ParseInt(f.ManagerID, 10, 64); err == nil && id > 0 {
		in.ManagerID = &id
	}
	return in
}

type managerOption struct {
	ID   int64
	Name string
}

type formPageData struct {
	ID       int64
	Form     Form
	Errors   map[string]string
	Managers []managerOption
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, 0, Form{}, nil)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	d, err := rq.API.Department(r.Context(), id)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/departements")
		return
	}
	h.renderForm(w, r, http.StatusOK, d.ID, FormFrom(*d), nil)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, id int64, form Form, errs map[string]string) {
	rq := h.deps.For(r)
	data := formPageData{ID: id, Form: form, Errors: errs}
	employees, err := querycache.Get(r.Context(), h.deps.Cache, rq.UserKey("employes"), rq.Background.Employees)
	if err != nil {
		h.deps.Responder.Errors().Handle(r.Context(), err, apierr.WithoutToast())
	}
	for _, e := range employees {
		u := &authz.User{Roles: authz.ParseRoles(e.Roles)}
		if e.Actif && authz.HasAnyRole(u, authz.RoleManager, authz.RoleAdmin, authz.RoleRH) {
			data.Managers = append(data.Managers, managerOption{ID: e.ID, Name: e.DisplayName()})
		}
	}
	slices.SortFunc(data.Managers, func(a, b managerOption) int { return strings.Compare(a.Name, b.Name) })
	title := "Nouveau département"
	if id > 0 {
		title = "Modifier le département"
	}
	h.deps.Responder.Render(w, r, status, "pages/department_form.html", h.deps.Responder.Page(r, title, data))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, 0)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.save(w, r, id)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, id int64) {
	rq := h.deps.For(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := Form{
		Nom:         strings.TrimSpace(r.PostFormValue("nom")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		ManagerID:   strings.TrimSpace(r.PostFormValue("managerId")),
	}
	if err := h.validator.Struct(form); err != nil {
		h.renderForm(w, r, http.StatusBadRequest, id, form, view.FormErrors(err))
		return
	}

	var (
		saved  *hrapi.Department
		err    error
		action = "department.create"
	)
	if id > 0 {
		action = "department.update"
		saved, err = rq.API.UpdateDepartment(r.Context(), id, form.Request())
	} else {
		saved, err = rq.API.CreateDepartment(r.Context(), form.Request())
	}
	if err != nil {
		if apierr.IsStatus(err, http.StatusBadRequest) || apierr.IsStatus(err, http.StatusConflict) {
			errs := h.deps.Responder.Errors().HandleValidation(r.Context(), err)
			h.renderForm(w, r, http.StatusBadRequest, id, form, errs)
			return
		}
		h.deps.Responder.APIFailure(w, r, err, "/departements")
		return
	}
	h.deps.Record(r.Context(), rq.User, action, "departement", saved.ID, map[string]any{"nom": saved.Nom})
	h.deps.Invalidate(r.Context(), console.KeyDepartments, "employes")
	h.deps.Responder.Redirect(w, r, "/departements", view.Flash(view.FlashSuccess, "Département enregistré"))
}
