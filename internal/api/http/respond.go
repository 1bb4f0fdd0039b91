// internal/api/http/respond.go
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/genem/simulado/internal/auth"
	"github.com/genem/simulado/internal/chat"
	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/logger"
	"github.com/genem/simulado/internal/simulado"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps engine errors to HTTP statuses. Remote failures become 502
// unless the remote said the resource is missing or the caller is not
// allowed.
func statusFor(err error) int {
	switch {
	case errors.Is(err, simulado.ErrInvalidConfig),
		errors.Is(err, simulado.ErrInvalidAnswer),
		errors.Is(err, simulado.ErrUnknownQuestion),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, auth.ErrPasswordMismatch):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNotAuthenticated),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, simulado.ErrNotAnswering),
		errors.Is(err, simulado.ErrFinalizeInProgress),
		errors.Is(err, simulado.ErrGenerationInProgress),
		errors.Is(err, simulado.ErrInvalidTransition),
		errors.Is(err, simulado.ErrSessionChanged):
		return http.StatusConflict
	case errors.Is(err, simulado.ErrFinalize),
		errors.Is(err, simulado.ErrRestart),
		errors.Is(err, chat.ErrUnavailable):
		return http.StatusBadGateway
	}
	var se *examapi.StatusError
	if errors.As(err, &se) {
		return remoteStatus(se.Code)
	}
	var ae *auth.APIError
	if errors.As(err, &ae) {
		return remoteStatus(ae.Code)
	}
	return http.StatusInternalServerError
}

func remoteStatus(code int) int {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return code
	}
	return http.StatusBadGateway
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.Error("gateway: %v", err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
