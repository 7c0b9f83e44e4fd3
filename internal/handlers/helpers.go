package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/middleware"
)

// errorEnvelope is the JSON error body; the trace ID lets operators quote a
// specific failure in support requests
type errorEnvelope struct {
	Error struct {
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
		TraceID    string `json:"traceId,omitempty"`
	} `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	var body errorEnvelope
	body.Error.Message = message
	body.Error.StatusCode = status
	body.Error.TraceID = middleware.TraceIDFrom(r.Context())
	respondJSON(w, status, body)
}

// respondDomainError maps pipeline errors onto HTTP statuses
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var normErr *apperrors.NormalizationError
	var valErr *apperrors.ValidationError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		respondError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrDuplicateSerial):
		respondError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrInvalidTransition):
		respondError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &normErr):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &valErr):
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, r, http.StatusInternalServerError, err.Error())
	}
}

// operatorFrom resolves the opaque operator identity for a submission
func operatorFrom(r *http.Request, fallback string) string {
	if op := r.Header.Get("X-Operator"); op != "" {
		return op
	}
	if fallback != "" {
		return fallback
	}
	return "anonymous"
}
