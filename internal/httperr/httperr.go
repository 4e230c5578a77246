// Package httperr maps the apperr.Kind taxonomy of spec.md §7 onto HTTP
// status codes and the {error, message, request_id, details?} response body
// every failed request returns. It is the single place that mapping lives so
// internal/middleware and internal/handler never disagree on it.
package httperr

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sentinelrag/sentinel/internal/apperr"
)

// Body is the wire shape of every non-2xx response (spec §7).
type Body struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// StatusFor maps an apperr.Kind to the HTTP status spec §7 assigns it.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDependencyFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Write sends err as a spec §7 error body, reading the request ID back off
// the response header middleware.Logging already set before the handler ran,
// and redacting the message for an internal error in production.
func Write(w http.ResponseWriter, r *http.Request, err error, production bool) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	message := err.Error()
	if ae, ok := err.(*apperr.Error); ok {
		message = ae.Message
	}
	if kind == apperr.KindInternal && production {
		message = "an internal error occurred"
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "kind", kind, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{
		Error:     string(kind),
		Message:   message,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteDetailed is Write plus a details map, for validation failures that
// name the offending fields (spec §7's optional `details`).
func WriteDetailed(w http.ResponseWriter, r *http.Request, err error, production bool, details map[string]string) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	message := err.Error()
	if ae, ok := err.(*apperr.Error); ok {
		message = ae.Message
	}
	if kind == apperr.KindInternal && production {
		message = "an internal error occurred"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{
		Error:     string(kind),
		Message:   message,
		RequestID: w.Header().Get("X-Request-ID"),
		Details:   details,
	})
}
