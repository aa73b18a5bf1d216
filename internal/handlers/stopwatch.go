package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"coachdesk-backend/internal/models"
	"coachdesk-backend/internal/stopwatch"
)

type stopwatchService interface {
	Snapshot(ctx context.Context) (stopwatch.Snapshot, error)
	Start(ctx context.Context) (stopwatch.Snapshot, error)
	Pause(ctx context.Context) (stopwatch.Snapshot, error)
	Resume(ctx context.Context) (stopwatch.Snapshot, error)
	Stop(ctx context.Context) (stopwatch.Snapshot, *models.CompletedSession, error)
	DailyTotals(ctx context.Context) ([]models.DailyTotal, error)
	SnapshotFor(ctx context.Context, studentID uuid.UUID) (stopwatch.Snapshot, error)
	DailyTotalsFor(ctx context.Context, studentID uuid.UUID) ([]models.DailyTotal, error)
}

// StopwatchHandler serves the signed-in student's own stopwatch.
type StopwatchHandler struct {
	svc stopwatchService
}

func NewStopwatchHandler(svc stopwatchService) *StopwatchHandler {
	return &StopwatchHandler{svc: svc}
}

func (h *StopwatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stopwatch": snap})
}

func (h *StopwatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Start(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"stopwatch": snap})
}

func (h *StopwatchHandler) Pause(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Pause(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stopwatch": snap})
}

func (h *StopwatchHandler) Resume(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Resume(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stopwatch": snap})
}

func (h *StopwatchHandler) Stop(w http.ResponseWriter, r *http.Request) {
	snap, completed, err := h.svc.Stop(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stopwatch": snap,
		"completed": completed,
	})
}

// Daily returns totals for yesterday through five days ahead.
func (h *StopwatchHandler) Daily(w http.ResponseWriter, r *http.Request) {
	days, err := h.svc.DailyTotals(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days})
}
