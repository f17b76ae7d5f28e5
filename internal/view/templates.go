package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// LiveView tells the browser which cache keys a page polls and how often.
type LiveView struct {
	Name       string
	Keys       []string
	IntervalMS int64
	Enabled    bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flashes     []shared.FlashMessage
	CurrentPath string
	User        *authz.User
	Nav         []NavItem
	Live        *LiveView
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").Funcs(funcMap()).ParseFS(web.Templates, web.TemplatePatterns...)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"formatDay":   FormatDay,
		"mask":        Mask,
		"hasRole":     hasRole,
		"statusLabel": StatusLabel,
		"join":        strings.Join,
	}
}

// FormatDay renders an ISO date or timestamp from the API as dd/mm/yyyy.
func FormatDay(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return raw
}

// Mask hides the middle of an email address or phone number.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if at := strings.IndexByte(value, '@'); at > 0 {
		return value[:1] + strings.Repeat("*", max(at-1, 1)) + value[at:]
	}
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

var statusLabels = map[string]string{
	"EN_ATTENTE": "En attente",
	"APPROUVE":   "Approuvé",
	"REJETE":     "Rejeté",
	"ANNULE":     "Annulé",
}

// StatusLabel returns the French label of a leave status.
func StatusLabel(status any) string {
	raw := fmt.Sprint(status)
	if label, ok := statusLabels[raw]; ok {
		return label
	}
	return raw
}

func hasRole(u *authz.User, roles ...string) bool {
	required := make([]authz.Role, 0, len(roles))
	for _, r := range roles {
		if role, ok := authz.ParseRole(r); ok {
			required = append(required, role)
		}
	}
	return authz.HasAnyRole(u, required...)
}
