package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/beside/server/internal/model"
)

// envelope is the uniform response body: {success, data?, error?, message?}.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: true, Message: message})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

// respondServiceError maps the sentinel error taxonomy to HTTP statuses. The
// wrapped message is safe to surface; unexpected errors are hidden behind a
// generic 500 so internals never leak into the envelope.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, model.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
