// Package apierr classifies failed GestionRH API calls into user-facing messages.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Payload is the error body returned by the GestionRH API.
type Payload struct {
	Status    int            `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   string         `json:"details,omitempty"`
	Errors    map[string]any `json:"errors,omitempty"`
	Path      string         `json:"path,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Response is the part of a failed call that reached the API.
type Response struct {
	Status int
	Data   *Payload
}

// Error is a failed API call. Response is nil when no HTTP response was received.
type Error struct {
	Method   string
	Path     string
	Response *Response
	Err      error
}

// Error implements error.
func (e *Error) Error() string {
	switch {
	case e.Response == nil && e.Err != nil:
		return fmt.Sprintf("hrapi %s %s: %v", e.Method, e.Path, e.Err)
	case e.Response == nil:
		return fmt.Sprintf("hrapi %s %s: no response", e.Method, e.Path)
	case e.Response.Data != nil && e.Response.Data.Message != "":
		return fmt.Sprintf("hrapi %s %s: status %d: %s", e.Method, e.Path, e.Response.Status, e.Response.Data.Message)
	default:
		return fmt.Sprintf("hrapi %s %s: status %d", e.Method, e.Path, e.Response.Status)
	}
}

// Unwrap exposes the transport cause.
func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status, or 0 when no response was received.
func (e *Error) StatusCode() int {
	if e == nil || e.Response == nil {
		return 0
	}
	return e.Response.Status
}

// FromResponse builds an Error from a non-2xx response body. Bodies that are not
// JSON leave Data nil.
func FromResponse(method, path string, status int, body []byte) *Error {
	resp := &Response{Status: status}
	if len(body) > 0 {
		var payload Payload
		if err := json.Unmarshal(body, &payload); err == nil {
			resp.Data = &payload
		}
	}
	return &Error{
		Method:   method,
		Path:     path,
		Response: resp,
		Err:      errors.New(http.StatusText(status)),
	}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode()
	}
	return 0
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	return StatusOf(err) == status
}
