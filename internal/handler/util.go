// Package handler provides the REST and WebSocket surfaces of the support API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/support-desk/internal/service"
	"github.com/capitalize-ai/support-desk/internal/session"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the client-facing text for err.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, session.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, session.ErrAgentNotFound):
		return "agent session not found"
	case errors.Is(err, session.ErrForbidden):
		return "agent is not assigned to this session"
	case errors.Is(err, service.ErrUpstream):
		return "assistant is unavailable, please try again"
	default:
		return "internal error"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), publicMessage(err))
}
