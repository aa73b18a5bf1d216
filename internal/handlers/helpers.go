package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"coachdesk-backend/internal/middleware"
	"coachdesk-backend/internal/models"
	"coachdesk-backend/internal/stopwatch"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

// handleServiceError maps stopwatch errors onto the API error envelope.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, stopwatch.ErrNotAuthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Sign in to use the stopwatch", r))
	case errors.Is(err, stopwatch.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResp("INVALID_TRANSITION", err.Error(), r))
	case errors.Is(err, stopwatch.ErrPersistence):
		log.Printf("stopwatch: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResp("PERSISTENCE_ERROR", "Could not save the stopwatch, please try again", r))
	default:
		log.Printf("stopwatch: unexpected error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
