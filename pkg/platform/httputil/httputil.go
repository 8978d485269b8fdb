// Package httputil centralizes JSON response writing so every handler emits
// the same envelope and domain errors map to HTTP statuses in one place.
package httputil

import (
	"encoding/json"
	"net/http"

	domainerrors "vitaex/pkg/domain-errors"
)

// WriteJSON writes v with the given status. Encoding failures are swallowed;
// the status line has already gone out.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a domain error into a JSON error envelope. Internal
// errors omit the description so server details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != domainerrors.CodeInternal {
		body["error_description"] = err.Error()
	}
	WriteJSON(w, StatusOf(code), body)
}

// StatusOf maps a domain error code to an HTTP status.
func StatusOf(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeInvalidInput, domainerrors.CodeBadRequest, domainerrors.CodeInvalidConsent:
		return http.StatusBadRequest
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeConflict, domainerrors.CodeInvalidState:
		return http.StatusConflict
	case domainerrors.CodeConsentDenied:
		return http.StatusForbidden
	case domainerrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
