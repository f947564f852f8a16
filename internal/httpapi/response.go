package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
)

// envelope is the body of every successful response.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

// errorBody is the body of every failed response.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Path       string `json:"path"`
	Timestamp  string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing to do if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{StatusCode: http.StatusOK, Message: message, Data: data})
}

func writeErrorMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorBody{
		StatusCode: status,
		Message:    message,
		Path:       r.URL.RequestURI(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// writeError maps an engine error to its status. Anything without a kind is
// logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeErrorMessage(w, r, status, "Internal Server Error")
		return
	}
	writeErrorMessage(w, r, status, err.Error())
}

func statusFor(err error) int {
	if errors.Is(err, authcore.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	switch authcore.KindOf(err) {
	case authcore.ErrNotFound:
		return http.StatusNotFound
	case authcore.ErrUnauthorized, authcore.ErrAlreadyInState:
		return http.StatusUnauthorized
	case authcore.ErrConflict:
		return http.StatusConflict
	case authcore.ErrValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
