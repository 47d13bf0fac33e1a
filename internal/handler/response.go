// Package handler contains the HTTP layer: request parsing, response shaping
// and the error-to-status mapping. Business rules live in the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lunahub/scripthub/internal/apperror"
)

// envelope is the shape of every API response body. Successful responses are
// {"success":true,"data":...}; errors carry a machine-readable type and a
// human-readable message instead of data.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeData sends a success envelope with the given status code.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already sent; logging is all that's left.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeUnauthorized is the in-handler fallback for routes that should have
// been behind RequireAuth but carry no identity.
func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, envelope{
		Success: false,
		Error:   "unauthorized",
		Message: "valid authentication required",
	})
}

// writeError maps a domain error onto its HTTP status. The service layer
// speaks apperror sentinels; only this function knows the status codes.
// Unknown errors become an opaque 500 so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrAlreadyLiked):
			status = http.StatusConflict
			errorType = "already_liked"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		case errors.Is(err, apperror.ErrTooManyRequests):
			status = http.StatusTooManyRequests
			errorType = "too_many_requests"
		}

		writeJSON(w, status, envelope{
			Success: false,
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, envelope{
		Success: false,
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
