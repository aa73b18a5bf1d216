package models

import (
	"github.com/google/uuid"
)

const (
	RoleStudent = "student"
	RoleCoach   = "coach"
)

type Profile struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Email       *string    `json:"email,omitempty"`
	StudentType *string    `json:"student_type,omitempty"`
	CoachID     *uuid.UUID `json:"coach_id,omitempty"`
}

func (p *Profile) IsCoach() bool {
	return p.Role == RoleCoach
}

// CoachedBy reports whether the profile belongs to a student of coachID.
func (p *Profile) CoachedBy(coachID uuid.UUID) bool {
	return p.CoachID != nil && *p.CoachID == coachID
}
