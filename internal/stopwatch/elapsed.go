package stopwatch

import (
	"time"

	"coachdesk-backend/internal/models"
)

// ElapsedSeconds returns the whole seconds a session has been running.
// While paused the reference instant is lastPause, otherwise now. The result
// is never negative.
func ElapsedSeconds(start time.Time, isPaused bool, lastPause *time.Time, totalPausedMs int64, now time.Time) int {
	ref := now
	if isPaused && lastPause != nil {
		ref = *lastPause
	}

	ms := ref.Sub(start).Milliseconds() - totalPausedMs
	if ms <= 0 {
		return 0
	}
	return int(ms / 1000)
}

// Elapsed evaluates ElapsedSeconds over a stored session.
func Elapsed(s *models.ActiveSession, now time.Time) int {
	if s == nil {
		return 0
	}
	return ElapsedSeconds(s.StartTime, s.IsPaused, s.LastPauseTime, s.TotalPausedTime, now)
}

// elapsedAt is Elapsed cut off at an instant, ignoring pauses that began
// after it.
func elapsedAt(s *models.ActiveSession, at time.Time) int {
	if s.IsPaused && s.LastPauseTime != nil && !s.LastPauseTime.After(at) {
		return Elapsed(s, at)
	}
	return ElapsedSeconds(s.StartTime, false, nil, s.TotalPausedTime, at)
}
