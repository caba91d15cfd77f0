package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fitdb/pkg/errs"
)

// JSONError writes a JSON error response with the given status code.
func JSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// JSONWrite writes v as JSON with the given status code.
func JSONWrite(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps service errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		JSONError(w, http.StatusConflict, "already exists")
	case errors.Is(err, errs.ErrInvalidCredentials):
		JSONError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, errs.ErrRateLimited):
		JSONError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, errs.ErrNotSupportConversation):
		JSONError(w, http.StatusBadRequest, "not a support conversation")
	case errors.Is(err, errs.ErrConflict):
		// bounded retries exhausted inside a service
		JSONError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
	default:
		JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
