// Package httpx writes the JSON responses polled by the console scripts and
// health checks.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
)

// ProblemDetail is an RFC 7807 body.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with status. Responses are never cached since they feed
// live counters.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, "application/json", status, data)
}

// Problem writes an RFC 7807 problem.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	write(w, "application/problem+json", status, ProblemDetail{Title: title, Status: status, Detail: detail})
}

// APIProblem reports a failed GestionRH API call with its classified text.
// Failures without an HTTP status, such as network errors, map to 502.
func APIProblem(w http.ResponseWriter, err error, detail string) {
	status := apierr.StatusOf(err)
	if status < http.StatusBadRequest {
		status = http.StatusBadGateway
	}
	Problem(w, status, http.StatusText(status), detail)
}

func write(w http.ResponseWriter, contentType string, status int, data any) {
	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
