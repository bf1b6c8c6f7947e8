// Package httpapi exposes the orchestration core to the wider
// application: the confirmation surface, on-demand sync and
// reconciliation, and the chat turn endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	featlyErrors "github.com/featly/featly/internal/errors"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerUserID   = "X-User-ID"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Fail maps a domain error onto an HTTP status.
func Fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, featlyErrors.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, featlyErrors.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, featlyErrors.ErrConflict),
		errors.Is(err, featlyErrors.ErrConfirmationRequired):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, featlyErrors.ErrRunTimeout),
		errors.Is(err, featlyErrors.ErrIndexingTimeout):
		Error(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, featlyErrors.ErrTransient):
		Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// identity is the caller's tenant and user, taken from the gateway's
// trust headers.
type identity struct {
	TenantID string
	UserID   string
}

func callerIdentity(r *http.Request) (identity, bool) {
	id := identity{
		TenantID: r.Header.Get(headerTenantID),
		UserID:   r.Header.Get(headerUserID),
	}
	return id, id.TenantID != "" && id.UserID != ""
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return featlyErrors.Validation("decode request body: " + err.Error())
	}
	return nil
}
