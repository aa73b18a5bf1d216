package stopwatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"coachdesk-backend/internal/models"
)

// Gateway is the persistence collaborator of the stopwatch.
type Gateway interface {
	// GetActiveSession returns nil and no error when the student has none.
	GetActiveSession(ctx context.Context, studentID uuid.UUID) (*models.ActiveSession, error)
	// CreateActiveSession stores a session starting at start. A non-nil
	// pausedAt creates it already paused at that instant.
	CreateActiveSession(ctx context.Context, studentID uuid.UUID, start time.Time, pausedAt *time.Time) (*models.ActiveSession, error)
	UpdateActiveSession(ctx context.Context, id uuid.UUID, patch models.ActiveSessionPatch) (*models.ActiveSession, error)
	DeleteActiveSession(ctx context.Context, id uuid.UUID) error
	AppendCompletedSession(ctx context.Context, studentID uuid.UUID, durationSeconds int, date string) (*models.CompletedSession, error)
	SumCompletedSessions(ctx context.Context, studentID uuid.UUID, date string) (int, error)
}

// Finalizer is implemented by gateways that can flush and delete an active
// session atomically. It returns ErrSessionNotFound when the session is
// already gone, in which case nothing is appended.
type Finalizer interface {
	FinalizeActiveSession(ctx context.Context, s *models.ActiveSession, durationSeconds int, date string) (*models.CompletedSession, error)
}

// Splitter is implemented by gateways that can close a session under date
// and create its successor in one transaction. A failure leaves the original
// session untouched.
type Splitter interface {
	SplitActiveSession(ctx context.Context, s *models.ActiveSession, durationSeconds int, date string, next time.Time, pausedAt *time.Time) (*models.CompletedSession, *models.ActiveSession, error)
}

// ActiveSessionLister lets the monitor find sessions not yet loaded in this
// process.
type ActiveSessionLister interface {
	ListActiveStudentIDs(ctx context.Context) ([]uuid.UUID, error)
}

// DailyTotalsLister sums completed sessions per date in [from, to].
type DailyTotalsLister interface {
	ListDailyTotals(ctx context.Context, studentID uuid.UUID, from, to string) (map[string]int, error)
}

// Locker guards a rollover across processes sharing one store.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type AuthEventType string

const (
	AuthSignedIn  AuthEventType = "SIGNED_IN"
	AuthSignedOut AuthEventType = "SIGNED_OUT"
)

type AuthEvent struct {
	Type   AuthEventType `json:"type"`
	UserID uuid.UUID     `json:"user_id"`
}

// IdentityProvider resolves the calling user and reports auth state changes.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (uuid.UUID, bool)
	Subscribe(fn func(AuthEvent)) (unsubscribe func())
}
