package handlers

import (
	"context"
	"log"
	"net/http"

	"coachdesk-backend/internal/middleware"
	"coachdesk-backend/internal/stopwatch"
)

type authEventPublisher interface {
	Publish(ctx context.Context, evt stopwatch.AuthEvent) error
}

// AuthHandler relays session changes reported by the frontend after it
// talks to the hosted auth provider.
type AuthHandler struct {
	events authEventPublisher
}

func NewAuthHandler(events authEventPublisher) *AuthHandler {
	return &AuthHandler{events: events}
}

func (h *AuthHandler) SignedOut(w http.ResponseWriter, r *http.Request) {
	evt := stopwatch.AuthEvent{
		Type:   stopwatch.AuthSignedOut,
		UserID: middleware.GetUserID(r.Context()),
	}
	if err := h.events.Publish(r.Context(), evt); err != nil {
		log.Printf("auth: publish signed-out for %s: %v", evt.UserID, err)
		writeJSON(w, http.StatusServiceUnavailable, errorResp("UNAVAILABLE", "Could not record sign-out", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out"})
}
