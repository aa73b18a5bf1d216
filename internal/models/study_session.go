package models

import (
	"time"

	"github.com/google/uuid"
)

// ActiveSession is the in-progress stopwatch run of a student. At most one
// row exists per student.
type ActiveSession struct {
	ID              uuid.UUID  `json:"id"`
	StudentID       uuid.UUID  `json:"student_id"`
	StartTime       time.Time  `json:"start_time"`
	IsPaused        bool       `json:"is_paused"`
	LastPauseTime   *time.Time `json:"last_pause_time,omitempty"`
	TotalPausedTime int64      `json:"total_paused_time"` // milliseconds
}

// ActiveSessionPatch carries the mutable fields of an ActiveSession.
type ActiveSessionPatch struct {
	IsPaused        bool
	LastPauseTime   *time.Time
	TotalPausedTime int64
}

// CompletedSession is an immutable record of seconds studied on a date.
type CompletedSession struct {
	ID              uuid.UUID `json:"id"`
	StudentID       uuid.UUID `json:"student_id"`
	DurationSeconds int       `json:"duration_seconds"`
	SessionDate     string    `json:"session_date"` // YYYY-MM-DD, reference timezone
	CreatedAt       time.Time `json:"created_at"`
}

type DailyTotal struct {
	Date         string `json:"date"`
	TotalSeconds int    `json:"total_seconds"`
	Formatted    string `json:"formatted"`
}
