package httpapi

import (
	"errors"
	"net/http"

	"github.com/treiswell/fintrack/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }
func unprocessable(w http.ResponseWriter, msg, code string) {
	writeErr(w, http.StatusUnprocessableEntity, msg, code)
}

// svcError maps service-layer sentinel errors onto HTTP responses. Lookups
// that fail because the resource is missing or owned by another user both
// land on 404; the API never reveals which.
func svcError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrNotActive):
		writeErr(w, http.StatusConflict, "occurrence is not active for this period, please refresh", "occurrence_not_active")
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	case errors.Is(err, errs.ErrInvalid):
		unprocessable(w, err.Error(), "validation_error")
	case errors.Is(err, errs.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		writeErr(w, http.StatusServiceUnavailable, "storage unavailable, retry shortly", "storage_unavailable")
	default:
		writeErr(w, http.StatusInternalServerError, "internal error", "")
	}
}
