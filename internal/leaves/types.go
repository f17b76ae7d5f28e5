package leaves

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

// adminTypesKey sits under KeyLeaveTypes so one invalidation covers both lists.
var adminTypesKey = querycache.Key(console.KeyLeaveTypes, "admin")

// TypeForm is the leave type create and edit form.
type TypeForm struct {
	Nom               string `form:"nom" validate:"required,max=100"`
	Code              string `form:"code" validate:"required,max=20,alphanum"`
	JoursParAn        string `form:"joursParAn" validate:"required,numeric"`
	CompteWeekend     bool   `form:"compteWeekend"`
	PeutDeborderSurCP bool   `form:"peutDeborderSurCP"`
}

// TypeFormFrom prefills the form from a leave type.
func TypeFormFrom(t hrapi.LeaveType) TypeForm {
	return TypeForm{
		Nom:               t.Nom,
		Code:              t.Code,
		JoursParAn:        strconv.FormatFloat(t.JoursParAn, 'f', -1, 64),
		CompteWeekend:     t.CompteWeekend,
		PeutDeborderSurCP: t.PeutDeborderSurCP,
	}
}

// Request converts a validated form. Codes are upper-cased and the yearly
// allowance must lie within a year.
func (f TypeForm) Request() (hrapi.LeaveTypeRequest, map[string]string) {
	days, err := strconv.ParseFloat(f.JoursParAn, 64)
	if err != nil || days < 0 || days > 366 {
		return hrapi.LeaveTypeRequest{}, map[string]string{"joursParAn": "Entre 0 et 366 jours"}
	}
	return hrapi.LeaveTypeRequest{
		Nom:               f.Nom,
		Code:              strings.ToUpper(f.Code),
		JoursParAn:        days,
		CompteWeekend:     f.CompteWeekend,
		PeutDeborderSurCP: f.PeutDeborderSurCP,
	}, nil
}

func (h *Handler) adminTypes(r *http.Request, rq console.Request) ([]hrapi.LeaveType, error) {
	types, err := querycache.Get(r.Context(), h.deps.Cache, adminTypesKey, rq.Background.AdminLeaveTypes)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(types, func(a, b hrapi.LeaveType) int { return strings.Compare(a.Code, b.Code) })
	return types, nil
}

func (h *Handler) types(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	types, err := h.adminTypes(r, rq)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/")
		return
	}
	page := h.deps.Responder.Page(r, "Types de congés", types)
	page.Live = h.deps.Live("types-conges", adminTypesKey)
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/leave_types.html", page)
}

type typeFormPageData struct {
	ID     int64
	Form   TypeForm
	Errors map[string]string
}

func (h *Handler) renderTypeForm(w http.ResponseWriter, r *http.Request, status int, id int64, form TypeForm, errs map[string]string) {
	title := "Nouveau type de congé"
	if id > 0 {
		title = "Modifier le type de congé"
	}
	data := typeFormPageData{ID: id, Form: form, Errors: errs}
	h.deps.Responder.Render(w, r, status, "pages/leave_type_form.html", h.deps.Responder.Page(r, title, data))
}

func (h *Handler) newType(w http.ResponseWriter, r *http.Request) {
	h.renderTypeForm(w, r, http.StatusOK, 0, TypeForm{JoursParAn: "0"}, nil)
}

// The API has no single-type read, so edits look the type up in the list.
func (h *Handler) editType(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	types, err := h.adminTypes(r, rq)
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/conges/types")
		return
	}
	i := slices.IndexFunc(types, func(t hrapi.LeaveType) bool { return t.ID == id })
	if i < 0 {
		h.deps.Responder.RenderError(w, r, http.StatusNotFound)
		return
	}
	h.renderTypeForm(w, r, http.StatusOK, id, TypeFormFrom(types[i]), nil)
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request) {
	h.saveType(w, r, 0)
}

func (h *Handler) updateType(w http.ResponseWriter, r *http.Request) {
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.saveType(w, r, id)
}

func (h *Handler) saveType(w http.ResponseWriter, r *http.Request, id int64) {
	rq := h.deps.For(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := TypeForm{
		Nom:               strings.TrimSpace(r.PostFormValue("nom")),
		Code:              strings.TrimSpace(r.PostFormValue("code")),
		JoursParAn:        strings.TrimSpace(r.PostFormValue("joursParAn")),
		CompteWeekend:     r.PostFormValue("compteWeekend") != "",
		PeutDeborderSurCP: r.PostFormValue("peutDeborderSurCP") != "",
	}
	if err := h.validator.Struct(form); err != nil {
		h.renderTypeForm(w, r, http.StatusBadRequest, id, form, view.FormErrors(err))
		return
	}
	in, errs := form.Request()
	if errs != nil {
		h.renderTypeForm(w, r, http.StatusBadRequest, id, form, errs)
		return
	}

	var (
		saved  *hrapi.LeaveType
		err    error
		action = "leave_type.create"
	)
	if id > 0 {
		action = "leave_type.update"
		saved, err = rq.API.UpdateLeaveType(r.Context(), id, in)
	} else {
		saved, err = rq.API.CreateLeaveType(r.Context(), in)
	}
	if err != nil {
		if apierr.IsStatus(err, http.StatusBadRequest) || apierr.IsStatus(err, http.StatusConflict) {
			h.renderTypeForm(w, r, http.StatusBadRequest, id, form, h.deps.Responder.Errors().HandleValidation(r.Context(), err))
			return
		}
		h.deps.Responder.APIFailure(w, r, err, "/conges/types")
		return
	}
	h.deps.Record(r.Context(), rq.User, action, "type_conge", saved.ID, map[string]any{"code": in.Code})
	h.deps.Invalidate(r.Context(), console.KeyLeaveTypes)
	h.deps.Responder.Redirect(w, r, "/conges/types", view.Flash(view.FlashSuccess, "Type de congé enregistré"))
}

func (h *Handler) deleteType(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	id, ok := console.IDParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := rq.API.DeleteLeaveType(r.Context(), id); err != nil {
		h.deps.Responder.APIFailure(w, r, err, "/conges/types")
		return
	}
	h.deps.Record(r.Context(), rq.User, "leave_type.delete", "type_conge", id, nil)
	h.deps.Invalidate(r.Context(), console.KeyLeaveTypes)
	h.deps.Responder.Redirect(w, r, "/conges/types", view.Flash(view.FlashSuccess, "Type de congé désactivé"))
}
