package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/mqttdesk/internal/profile"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeConflict        = "conflict"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeBadGateway      = "transport_error"
	ErrCodePayloadTooLarge = "payload_too_large"
	ErrCodeUnavailable     = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps session and profile errors onto HTTP statuses.
//
//   - bad port, host, QoS, topic or profile fields: 400
//   - payload over the size limit: 413
//   - operation not allowed in the current state, duplicate name: 409
//   - transport refused the request: 502
//   - unknown profile: 404
//
// Anything else is a 500 with a generic message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidPort),
		errors.Is(err, session.ErrInvalidHost),
		errors.Is(err, session.ErrInvalidQoS),
		errors.Is(err, session.ErrInvalidTopic):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, profile.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, session.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, err.Error())
	case errors.Is(err, session.ErrInvalidOperation),
		errors.Is(err, profile.ErrDuplicateName):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, session.ErrTransportFailure),
		errors.Is(err, session.ErrSubscribeFailed),
		errors.Is(err, session.ErrPublishFailed):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	case errors.Is(err, profile.ErrProfileNotFound):
		writeNotFound(w, "profile not found")
	default:
		writeInternalError(w, "internal server error")
	}
}
