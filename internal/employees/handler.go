package employees

import (
	"net/http"
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
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

// Handler serves the employee directory.
type Handler struct {
	deps      console.Deps
	policy    authz.Policy
	validator *validator.Validate
}

// NewHandler constructs the employee handler.
func NewHandler(deps console.Deps) *Handler {
	return &Handler{deps: deps, policy: authz.DefaultPolicy, validator: view.NewValidator()}
}

// MountRoutes registers employee routes.
func (h *Handler) MountRoutes(r chi.Router) {
	staff := r.With(h.deps.RBAC.RequireRoles(rbac.Staff...))
	staff.Get("/", h.list)
	staff.Get("/nouveau", h.newForm)
	staff.Post("/", h.create)
	staff.Post("/{id}/desactiver", h.deactivate)
	staff.Post("/{id}/reactiver", h.reactivate)

	// Managers reach the records of their own department.
	approvers := r.With(h.deps.RBAC.RequireRoles(rbac.Approvers...))
	approvers.Get("/historique", h.history)
	approvers.Get("/{id}", h.show)
	approvers.Get("/{id}/modifier", h.edit)
	approvers.Post("/{id}", h.update)
}

// Row is an employee as displayed in the directory.
type Row struct {
	ID          int64
	Name        string
	Email       string
	Phone       string
	Departement string
	Poste       string
	Actif       bool
	CanEdit     bool
}

// Filter narrows the directory.
type Filter struct {
	Query       string
	Departement string
	Status      string
}

func (f Filter) match(e hrapi.Employee) bool {
	switch f.Status {
	case "actifs":
		if !e.Actif {
			return false
		}
	case "inactifs":
		if e.Actif {
			return false
		}
	}
	if f.Departement != "" && !strings.EqualFold(e.Departement, f.Departement) {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(e.DisplayName()), q) || strings.Contains(strings.ToLower(e.Email), q)
}

// BuildRows applies the filter, contact masking and edit rights of u.
func BuildRows(u *authz.User, policy authz.Policy, employees []hrapi.Employee, filter Filter) []Row {
	access := authz.DataAccessFor(u)
	rows := make([]Row, 0, len(employees))
	for _, e := range employees {
		if !filter.match(e) {
			continue
		}
		own := u != nil && strings.EqualFold(u.Email, e.Email)
		row := Row{
			ID:          e.ID,
			Name:        e.DisplayName(),
			Email:       e.Email,
			Phone:       e.Telephone,
			Departement: e.Departement,
			Poste:       e.Poste,
			Actif:       e.Actif,
			CanEdit:     policy.CanEditEmployee(u, e.Departement),
		}
		if !access.ViewAllEmails && !own {
			row.Email = view.Mask(row.Email)
		}
		if !access.ViewAllPhones && !own {
			row.Phone = view.Mask(row.Phone)
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b Row) int { return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) })
	return rows
}

type listPageData struct {
	Rows        []Row
	Filter      Filter
	Departments []string
	Pagination  shared.Pagination
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	key := rq.UserKey("employes")
	employees, err := h.loadEmployees(r, rq, key)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	q := r.URL.Query()
	filter := Filter{Query: strings.TrimSpace(q.Get("q")), Departement: q.Get("departement"), Status: q.Get("statut")}
	rows := BuildRows(rq.User, h.policy, employees, filter)
	pagination := shared.PaginationFromQuery(q, len(rows))

	data := listPageData{
		Rows:        shared.PageSlice(rows, pagination),
		Filter:      filter,
		Departments: departmentNames(employees),
		Pagination:  pagination,
	}
	page := h.deps.Responder.Page(r, "Employés", data)
	page.Live = h.deps.Live("employes", key)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/employees.html", page)
}

func (h *Handler) loadEmployees(r *http.Request, rq console.Request, key string) ([]hrapi.Employee, error) {
	return querycache.Get(r.Context(), h.deps.Cache, key, rq.Background.Employees)
}

type detailPageData struct {
	Employee   hrapi.Employee
	Visibility authz.FieldVisibility
	Access     authz.DataAccess
	CanEdit    bool
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	emp, ok := h.fetch(w, r, rq)
	if !ok {
		return
	}
	data := detailPageData{
		Employee:   *emp,
		Visibility: authz.FieldVisibilityFor(rq.User),
		Access:     authz.DataAccessFor(rq.User),
		CanEdit:    h.policy.CanEditEmployee(rq.User, emp.Departement),
	}
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/employee.html", h.deps.Responder.Page(r, emp.DisplayName(), data))
}

type employeeForm struct {
	Nom         string   `form:"nom" validate:"required,max=100"`
	Prenom      string   `form:"prenom" validate:"required,max=100"`
	Email       string   `form:"email" validate:"required,email"`
	Telephone   string   `form:"telephone" validate:"omitempty,max=20"`
	Poste       string   `form:"poste" validate:"omitempty,max=100"`
	Departement string   `form:"departement" validate:"omitempty,max=100"`
	Roles       []string `form:"roles" validate:"dive,oneof=ADMIN RH MANAGER EMPLOYE"`
}

type editPageData struct {
	ID         int64
	Form       employeeForm
	Errors     map[string]string
	Visibility authz.FieldVisibility
	Access     authz.DataAccess
	AllRoles   []authz.Role
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	emp, ok := h.fetch(w, r, rq)
	if !ok {
		return
	}
	if !h.policy.CanEditEmployee(rq.User, emp.Departement) {
		h.deps.Responder.Forbidden(w, r)
		return
	}
	form := employeeForm{
		Nom:         emp.Nom,
		Prenom:      emp.Prenom,
		Email:       emp.Email,
		Telephone:   emp.Telephone,
		Poste:       emp.Poste,
		Departement: emp.Departement,
		Roles:       emp.Roles,
	}
	h.renderEdit(w, r, rq, http.StatusOK, emp.ID, form, nil)
}

func (h *Handler) renderEdit(w http.ResponseWriter, r *http.Request, rq console.Request, status int, id int64, form employeeForm, errs map[string]string) {
	data := editPageData{
		ID:         id,
		Form:       form,
		Errors:     errs,
		Visibility: authz.FieldVisibilityFor(rq.User),
		Access:     authz.DataAccessFor(rq.User),
		AllRoles:   authz.AllRoles(),
	}
	h.deps.Responder.Render(w, r, status, "pages/employee_edit.html", h.deps.Responder.Page(r, "Modifier l'employé", data))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	emp, ok := h.fetch(w, r, rq)
	if !ok {
		return
	}
	if !h.policy.CanEditEmployee(rq.User, emp.Departement) {
		h.deps.Responder.Forbidden(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	access := authz.DataAccessFor(rq.User)
	form := employeeForm{
		Nom:         strings.TrimSpace(r.PostFormValue("nom")),
		Prenom:      strings.TrimSpace(r.PostFormValue("prenom")),
		Email:       strings.TrimSpace(r.PostFormValue("email")),
		Telephone:   strings.TrimSpace(r.PostFormValue("telephone")),
		Poste:       strings.TrimSpace(r.PostFormValue("poste")),
		Departement: strings.TrimSpace(r.PostFormValue("departement")),
		Roles:       emp.Roles,
	}
	if access.ManageRoles {
		form.Roles = r.PostForm["roles"]
	}
	if !authz.FieldVisibilityFor(rq.User).Department {
		form.Departement = emp.Departement
	}
	if err := h.validator.Struct(form); err != nil {
		h.renderEdit(w, r, rq, http.StatusBadRequest, emp.ID, form, view.FormErrors(err))
		return
	}

	in := hrapi.UpdateEmployeeRequest{
		Nom:         form.Nom,
		Prenom:      form.Prenom,
		Email:       form.Email,
		Telephone:   form.Telephone,
		Poste:       form.Poste,
		Departement: form.Departement,
	}
	if access.ManageRoles {
		in.Roles = form.Roles
	}
	if _, err := rq.API.UpdateEmployee(r.Context(), emp.ID, in); err != nil {
		if apierr.IsStatus(err, http.StatusBadRequest) {
			errs := h.deps.Responder.Errors().HandleValidation(r.Context(), err)
			h.renderEdit(w, r, rq, http.StatusBadRequest, emp.ID, form, errs)
			return
		}
		h.deps.Responder.APIFailure(w, r, err, employeePath(emp.ID))
		return
	}
	h.deps.Record(r.Context(), rq.User, "employee.update", "employe", emp.ID, map[string]any{
		"departement": form.Departement,
		"roles":       in.Roles,
	})
	h.deps.Invalidate(r.Context(), "employes")
	h.deps.Responder.Redirect(w, r, employeePath(emp.ID), view.Flash(view.FlashSuccess, "Employé mis à jour"))
}

type createForm struct {
	employeeForm
	MotDePasse string `form:"motDePasse" validate:"required,min=8,max=100,password"`
}

type newPageData struct {
	Form       createForm
	Errors     map[string]string
	Visibility authz.FieldVisibility
	AllRoles   []authz.Role
}

// createRequest builds the API payload. Roles and department are only sent
// when visible to the author; new accounts default to EMPLOYE on the API side.
func createRequest(form createForm, visibility authz.FieldVisibility) hrapi.CreateEmployeeRequest {
	active := true
	in := hrapi.CreateEmployeeRequest{
		Email:      form.Email,
		MotDePasse: form.MotDePasse,
		Nom:        form.Nom,
		Prenom:     form.Prenom,
		Telephone:  form.Telephone,
		Poste:      form.Poste,
		Actif:      &active,
	}
	if visibility.Department {
		in.Departement = form.Departement
	}
	if visibility.Roles {
		in.Roles = form.Roles
	}
	return in
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	form := createForm{employeeForm: employeeForm{Roles: []string{string(authz.RoleEmploye)}}}
	h.renderNew(w, r, http.StatusOK, form, nil)
}

func (h *Handler) renderNew(w http.ResponseWriter, r *http.Request, status int, form createForm, errs map[string]string) {
	rq := h.deps.For(r)
	form.MotDePasse = ""
	data := newPageData{
		Form:       form,
		Errors:     errs,
		Visibility: authz.FieldVisibilityFor(rq.User),
		AllRoles:   authz.AllRoles(),
	}
	h.deps.Responder.Render(w, r, status, "pages/employee_new.html", h.deps.Responder.Page(r, "Nouvel employé", data))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	visibility := authz.FieldVisibilityFor(rq.User)
	form := createForm{
		employeeForm: employeeForm{
			Nom:         strings.TrimSpace(r.PostFormValue("nom")),
			Prenom:      strings.TrimSpace(r.PostFormValue("prenom")),
			Email:       strings.TrimSpace(r.PostFormValue("email")),
			Telephone:   strings.TrimSpace(r.PostFormValue("telephone")),
			Poste:       strings.TrimSpace(r.PostFormValue("poste")),
			Departement: strings.TrimSpace(r.PostFormValue("departement")),
			Roles:       r.PostForm["roles"],
		},
		MotDePasse: r.PostFormValue("motDePasse"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.renderNew(w, r, http.StatusBadRequest, form, view.FormErrors(err))
		return
	}
	in := createRequest(form, visibility)
	emp, err := rq.API.CreateEmployee(r.Context(), in)
	if err != nil {
		if apierr.IsStatus(err, http.StatusBadRequest) || apierr.IsStatus(err, http.StatusConflict) {
			h.renderNew(w, r, http.StatusBadRequest, form, h.deps.Responder.Errors().HandleValidation(r.Context(), err))
			return
		}
		h.deps.Responder.APIFailure(w, r, err, "/employes")
		return
	}
	h.deps.Record(r.Context(), rq.User, "employee.create", "employe", emp.ID, map[string]any{
		"departement": in.Departement,
		"roles":       in.Roles,
	})
	h.deps.Invalidate(r.Context(), "employes", console.KeyDepartments)
	h.deps.Responder.Redirect(w, r, employeePath(emp.ID), view.Flash(view.FlashSuccess, "Employé créé"))
}

// FilterAffectations keeps the changes whose employee or author matches
// query, newest first.
func FilterAffectations(changes []hrapi.AffectationChange, query string) []hrapi.AffectationChange {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]hrapi.AffectationChange, 0, len(changes))
	for _, c := range changes {
		if q == "" || strings.Contains(strings.ToLower(c.EmployeNomComplet), q) || strings.Contains(strings.ToLower(c.ModifiePar), q) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b hrapi.AffectationChange) int {
		return strings.Compare(b.DateChangement, a.DateChangement)
	})
	return out
}

type historyPageData struct {
	Rows       []hrapi.AffectationChange
	Query      string
	Pagination shared.Pagination
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	key := rq.UserKey("employes", "historique")
	changes, err := querycache.Get(r.Context(), h.deps.Cache, key, rq.Background.AffectationHistory)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	q := r.URL.Query()
	rows := FilterAffectations(changes, q.Get("q"))
	pagination := shared.PaginationFromQuery(q, len(rows))
	data := historyPageData{
		Rows:       shared.PageSlice(rows, pagination),
		Query:      strings.TrimSpace(q.Get("q")),
		Pagination: pagination,
	}
	page := h.deps.Responder.Page(r, "Historique des affectations", data)
	page.Live = h.deps.Live("affectations", key)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/affectations.html", page)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !authz.DataAccessFor(rq.User).EditAllEmployees {
		h.deps.Responder.Forbidden(w, r)
		return
	}
	var err error
	action, message := "employee.deactivate", "Employé désactivé"
	if active {
		action, message = "employee.reactivate", "Employé réactivé"
		_, err = rq.API.ReactivateEmployee(r.Context(), id)
	} else {
		err = rq.API.DeactivateEmployee(r.Context(), id)
	}
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, employeePath(id))
		return
	}
	h.deps.Record(r.Context(), rq.User, action, "employe", id, nil)
	h.deps.Invalidate(r.Context(), "employes")
	h.deps.Responder.Redirect(w, r, employeePath(id), view.Flash(view.FlashSuccess, message))
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request, rq console.Request) (*hrapi.Employee, bool) {
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}
	emp, err := rq.API.Employee(r.Context(), id)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/employes")
		return nil, false
	}
	return emp, true
}

func employeePath(id int64) string {
	return "/employes/" + strconv.FormatInt(id, 10)
}

func departmentNames(employees []hrapi.Employee) []string {
	var names []string
	for _, e := range employees {
		if e.Departement != "" && !slices.Contains(names, e.Departement) {
			names = append(names, e.Departement)
		}
	}
	slices.Sort(names)
	return names
}
