package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"coachdesk-backend/internal/middleware"
	"coachdesk-backend/internal/models"
)

type profileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	ListStudentsByCoach(ctx context.Context, coachID uuid.UUID) ([]*models.Profile, error)
}

// StudentHandler lets a coach look at the stopwatches of linked students.
type StudentHandler struct {
	svc      stopwatchService
	profiles profileReader
}

func NewStudentHandler(svc stopwatchService, profiles profileReader) *StudentHandler {
	return &StudentHandler{svc: svc, profiles: profiles}
}

func (h *StudentHandler) coach(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	coach, err := h.profiles.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Only coaches can view students", r))
		return nil, false
	}
	if err != nil {
		log.Printf("students: load coach profile: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load profile", r))
		return nil, false
	}
	if !coach.IsCoach() {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Only coaches can view students", r))
		return nil, false
	}
	return coach, true
}

// student resolves the {id} route param to a student linked to the caller.
func (h *StudentHandler) student(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	studentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid student ID", r))
		return uuid.Nil, false
	}

	coach, ok := h.coach(w, r)
	if !ok {
		return uuid.Nil, false
	}

	student, err := h.profiles.GetByID(r.Context(), studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Student not found", r))
		return uuid.Nil, false
	}
	if err != nil {
		log.Printf("students: load student profile: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load student", r))
		return uuid.Nil, false
	}
	if !student.CoachedBy(coach.ID) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Student is not linked to you", r))
		return uuid.Nil, false
	}
	return studentID, true
}

func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	coach, ok := h.coach(w, r)
	if !ok {
		return
	}

	students, err := h.profiles.ListStudentsByCoach(r.Context(), coach.ID)
	if err != nil {
		log.Printf("students: list: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list students", r))
		return
	}
	if students == nil {
		students = []*models.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"students": students})
}

func (h *StudentHandler) Stopwatch(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.student(w, r)
	if !ok {
		return
	}

	snap, err := h.svc.SnapshotFor(r.Context(), studentID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stopwatch": snap})
}

func (h *StudentHandler) Daily(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.student(w, r)
	if !ok {
		return
	}

	days, err := h.svc.DailyTotalsFor(r.Context(), studentID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days})
}
