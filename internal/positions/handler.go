package positions

import (
	"context"
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
	"github.com/gestionrh/gestionrh-console/internal/view"
)

// Handler lists job positions ("postes").
type Handler struct {
	deps      console.Deps
	validator *validator.Validate
}

// NewHandler constructs the positions handler.
func NewHandler(deps console.Deps) *Handler {
	return &Handler{deps: deps, validator: view.NewValidator()}
}

// MountRoutes registers position routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.deps.RBAC.RequireRoles(rbac.Staff...))
	r.Get("/", h.list)
	r.Get("/nouveau", h.newForm)
	r.Post("/", h.create)
	r.Get("/{id}/modifier", h.edit)
	r.Post("/{id}", h.update)
	r.Post("/{id}/supprimer", h.delete)
}

// Row is a position as displayed, salary range included only when visible.
type Row struct {
	ID          int64
	Titre       string
	Description string
	Departement string
	Salaire     string
}

// BuildRows formats jobs for u.
func BuildRows(u *authz.User, jobs []hrapi.Job) []Row {
	showSalary := authz.FieldVisibilityFor(u).Salary
	rows := make([]Row, 0, len(jobs))
	for _, j := range jobs {
		row := Row{ID: j.ID, Titre: j.Titre, Description: j.Description, Departement: j.DepartementNom}
		if showSalary {
			row.Salaire = salaryRange(j.SalaireMin, j.SalaireMax)
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b Row) int { return strings.Compare(a.Titre, b.Titre) })
	return rows
}

func salaryRange(lo, hi *float64) string {
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', 0, 64) + " €" }
	switch {
	case lo != nil && hi != nil:
		return format(*lo) + " - " + format(*hi)
	case lo != nil:
		return "à partir de " + format(*lo)
	case hi != nil:
		return "jusqu'à " + format(*hi)
	}
	return ""
}

type listPageData struct {
	Rows         []Row
	Departments  []hrapi.Department
	DepartmentID int64
	ShowSalary   bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	departmentID, _ := strconv.ParseInt(r.URL.Query().Get("departement"), 10, 64)

	var jobs []hrapi.Job
	var err error
	key := console.KeyJobs
	if departmentID > 0 {
		key = querycache.Key(console.KeyJobs, "departement", strconv.FormatInt(departmentID, 10))
		jobs, err = querycache.Get(r.Context(), h.deps.Cache, key, func(ctx context.Context) ([]hrapi.Job, error) {
			return rq.Background.JobsByDepartment(ctx, departmentID)
		})
	} else {
		jobs, err = querycache.Get(r.Context(), h.deps.Cache, key, rq.Background.Jobs)
	}
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	departments, err := querycache.Get(r.Context(), h.deps.Cache, console.KeyDepartments, rq.Background.Departments)
	if err != nil {
		h.deps.Responder.Errors().Handle(r.Context(), err)
	}
	data := listPageData{
		Rows:         BuildRows(rq.User, jobs),
		Departments:  departments,
		DepartmentID: departmentID,
		ShowSalary:   authz.FieldVisibilityFor(rq.User).Salary,
	}
	page := h.deps.Responder.Page(r, "Postes", data)
	page.Live = h.deps.Live("postes", key)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/positions.html", page)
}

// Form is the poste create and edit form.
type Form struct {
	Titre         string `form:"titre" validate:"required,max=100"`
	Description   string `form:"description" validate:"omitempty,max=500"`
	SalaireMin    string `form:"salaireMin" validate:"omitempty,numeric"`
	SalaireMax    string `form:"salaireMax" validate:"omitempty,numeric"`
	DepartementID string `form:"departementId" validate:"required,numeric"`
}

// FormFrom prefills the form from a poste. Salaries are left out unless
// showSalary.
func FormFrom(j hrapi.Job, showSalary bool) Form {
	form := Form{Titre: j.Titre, Description: j.Description}
	if j.DepartementID > 0 {
		form.DepartementID = strconv.FormatInt(j.DepartementID, 10)
	}
	if showSalary {
		form.SalaireMin = formatAmount(j.SalaireMin)
		form.SalaireMax = formatAmount(j.SalaireMax)
	}
	return form
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseAmount(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Request converts a validated form. When showSalary is false the salary
// range of current is kept as is.
func (f Form) Request(showSalary bool, current hrapi.Job) (hrapi.JobRequest, map[string]string) {
	departmentID, _ := strconv.ParseInt(f.DepartementID, 10, 64)
	in := hrapi.JobRequest{
		Titre:         f.Titre,
		Description:   f.Description,
		DepartementID: departmentID,
		SalaireMin:    current.SalaireMin,
		SalaireMax:    current.SalaireMax,
	}
	if !showSalary {
		return in, nil
	}
	in.SalaireMin, in.SalaireMax = parseAmount(f.SalaireMin), parseAmount(f.SalaireMax)
	errs := map[string]string{}
	if in.SalaireMin != nil && *in.SalaireMin < 0 {
		errs["salaireMin"] = "Le salaire doit être positif"
	}
	if in.SalaireMin != nil && in.SalaireMax != nil && *in.SalaireMax < *in.SalaireMin {
		errs["salaireMax"] = "Le salaire maximum doit être supérieur au minimum"
	}
	if len(errs) > 0 {
		return in, errs
	}
	return in, nil
}

type formPageData struct {
	ID          int64
	Form        Form
	Errors      map[string]string
	Departments []hrapi.Department
	ShowSalary  bool
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	form := Form{DepartementID: r.URL.Query().Get("departement")}
	h.renderForm(w, r, http.StatusOK, 0, form, nil)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	job, ok := h.fetch(w, r, rq)
	if !ok {
		return
	}
	h.renderForm(w, r, http.StatusOK, job.ID, FormFrom(*job, authz.FieldVisibilityFor(rq.User).Salary), nil)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, id int64, form Form, errs map[string]string) {
	rq := h.deps.For(r)
	departments, err := querycache.Get(r.Context(), h.deps.Cache, console.KeyDepartments, rq.Background.Departments)
	if err != nil {
		h.deps.Responder.Errors().Handle(r.Context(), err)
	}
	slices.SortFunc(departments, func(a, b hrapi.Department) int { return strings.Compare(a.Nom, b.Nom) })
	data := formPageData{
		ID:          id,
		Form:        form,
		Errors:      errs,
		Departments: departments,
		ShowSalary:  authz.FieldVisibilityFor(rq.User).Salary,
	}
	title := "Nouveau poste"
	if id > 0 {
		title = "Modifier le poste"
	}
	h.deps.Responder.Render(w, r, status, "pages/position_form.html", h.deps.Responder.Page(r, title, data))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, nil)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	job, ok := h.fetch(w, r, rq)
	if !ok {
		return
	}
	h.save(w, r, job)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, current *hrapi.Job) {
	rq := h.deps.For(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var id int64
	base := hrapi.Job{}
	if current != nil {
		id, base = current.ID, *current
	}
	showSalary := authz.FieldVisibilityFor(rq.User).Salary
	form := Form{
		Titre:         strings.TrimSpace(r.PostFormValue("titre")),
		Description:   strings.TrimSpace(r.PostFormValue("description")),
		DepartementID: strings.TrimSpace(r.PostFormValue("departementId")),
	}
	if showSalary {
		form.SalaireMin = strings.TrimSpace(r.PostFormValue("salaireMin"))
		form.SalaireMax = strings.TrimSpace(r.PostFormValue("salaireMax"))
	}
	if err := h.validator.Struct(form); err != nil {
		h.renderForm(w, r, http.StatusBadRequest, id, form, view.FormErrors(err))
		return
	}
	in, errs := form.Request(showSalary, base)
	if errs != nil {
		h.renderForm(w, r, http.StatusBadRequest, id, form, errs)
		return
	}

	var (
		saved  *hrapi.Job
		err    error
		action = "position.create"
	)
	if id > 0 {
		action = "position.update"
		saved, err = rq.API.UpdateJob(r.Context(), id, in)
	} else {
		saved, err = rq.API.CreateJob(r.Context(), in)
	}
	if err != nil {
		if apierr.IsStatus(err, http.StatusBadRequest) || apierr.IsStatus(err, http.StatusConflict) {
			h.renderForm(w, r, http.StatusBadRequest, id, form, h.deps.Responder.Errors().HandleValidation(r.Context(), err))
			return
		}
		h.deps.Responder.APIFailure(w, r, err, "/postes")
		return
	}
	h.deps.Record(r.Context(), rq.User, action, "poste", saved.ID, map[string]any{"departementId": in.DepartementID})
	h.deps.Invalidate(r.Context(), console.KeyJobs)
	h.deps.Responder.Redirect(w, r, "/postes", view.Flash(view.FlashSuccess, "Poste enregistré"))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := rq.API.DeleteJob(r.Context(), id); err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/postes")
		return
	}
	h.deps.Record(r.Context(), rq.User, "position.delete", "poste", id, nil)
	h.deps.Invalidate(r.Context(), console.KeyJobs)
	h.deps.Responder.Redirect(w, r, "/postes", view.Flash(view.FlashSuccess, "Poste supprimé"))
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request, rq console.Request) (*hrapi.Job, bool) {
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}
	job, err := rq.API.Job(r.Context(), id)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/postes")
		return nil, false
	}
	return job, true
}
