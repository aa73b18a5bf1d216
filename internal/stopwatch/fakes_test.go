package stopwatch

import (
	"context"
	"errors"
	"sync"
	"time"

	_ "time/tzdata"

	"github.com/google/uuid"

	"coachdesk-backend/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var errStoreDown = errors.New("store unavailable")

// memGateway is an in-memory Gateway. It hands out copies so callers never
// alias stored rows.
type memGateway struct {
	mu        sync.Mutex
	active    map[uuid.UUID]models.ActiveSession
	completed []models.CompletedSession
	failOps   map[string]error
}

func newMemGateway() *memGateway {
	return &memGateway{
		active:  make(map[uuid.UUID]models.ActiveSession),
		failOps: make(map[string]error),
	}
}

func (g *memGateway) failOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOps[op] = err
}

func (g *memGateway) clearFailures() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOps = make(map[string]error)
}

func (g *memGateway) GetActiveSession(ctx context.Context, studentID uuid.UUID) (*models.ActiveSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps["get"]; err != nil {
		return nil, err
	}
	for _, s := range g.active {
		if s.StudentID == studentID {
			c := s
			return &c, nil
		}
	}
	return nil, nil
}

func (g *memGateway) CreateActiveSession(ctx context.Context, studentID uuid.UUID, start time.Time, pausedAt *time.Time) (*models.ActiveSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps["create"]; err != nil {
		return nil, err
	}
	for id, s := range g.active {
		if s.StudentID == studentID {
			return nil, errors.New("unique violation on active_sessions.student_id: " + id.String())
		}
	}
	s := models.ActiveSession{ID: uuid.New(), StudentID: studentID, StartTime: start}
	if pausedAt != nil {
		p := *pausedAt
		s.IsPaused = true
		s.LastPauseTime = &p
	}
	g.active[s.ID] = s
	c := s
	return &c, nil
}

func (g *memGateway) UpdateActiveSession(ctx context.Context, id uuid.UUID, patch models.ActiveSessionPatch) (*models.ActiveSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps["update"]; err != nil {
		return nil, err
	}
	s, ok := g.active[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.IsPaused = patch.IsPaused
	s.LastPauseTime = nil
	if patch.LastPauseTime != nil {
		p := *patch.LastPauseTime
		s.LastPauseTime = &p
	}
	s.TotalPausedTime = patch.TotalPausedTime
	g.active[id] = s
	c := s
	return &c, nil
}

func (g *memGateway) DeleteActiveSession(ctx context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps["delete"]; err != nil {
		return err
	}
	delete(g.active, id)
	return nil
}

func (g *memGateway) AppendCompletedSession(ctx context.Context, studentID uuid.UUID, durationSeconds int, date string) (*models.CompletedSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps["append"]; err != nil {
		return nil, err
	}
	c := models.CompletedSession{ID: uuid.New(), StudentID: studentID, DurationSeconds: durationSeconds, SessionDate: date}
	g.completed = append(g.completed, c)
	return &c, nil
}

func (g *memGateway) SumCompletedSessions(ctx context.Context, studentID uuid.UUID, date string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failOps["sum"]; err != nil {
		return 0, err
	}
	total := 0
	for _, c := range g.completed {
		if c.StudentID == studentID && c.SessionDate == date {
			total += c.DurationSeconds
		}
	}
	return total, nil
}

func (g *memGateway) ListActiveStudentIDs(ctx context.Context) ([]uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(g.active))
	for _, s := range g.active {
		ids = append(ids, s.StudentID)
	}
	return ids, nil
}

func (g *memGateway) activeFor(studentID uuid.UUID) []models.ActiveSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.ActiveSession
	for _, s := range g.active {
		if s.StudentID == studentID {
			out = append(out, s)
		}
	}
	return out
}

func (g *memGateway) completedFor(studentID uuid.UUID) []models.CompletedSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.CompletedSession
	for _, c := range g.completed {
		if c.StudentID == studentID {
			out = append(out, c)
		}
	}
	return out
}

// finalizingGateway adds the atomic Finalizer capability.
type finalizingGateway struct {
	*memGateway
	finalized int
}

func (g *finalizingGateway) FinalizeActiveSession(ctx context.Context, s *models.ActiveSession, durationSeconds int, date string) (*models.CompletedSession, error) {
	g.mu.Lock()
	if _, ok := g.active[s.ID]; !ok {
		g.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	delete(g.active, s.ID)
	g.finalized++
	var c *models.CompletedSession
	if durationSeconds > 0 {
		rec := models.CompletedSession{ID: uuid.New(), StudentID: s.StudentID, DurationSeconds: durationSeconds, SessionDate: date}
		g.completed = append(g.completed, rec)
		c = &rec
	}
	g.mu.Unlock()
	return c, nil
}

// splittingGateway adds the Splitter capability. A create failure is checked
// before anything changes, like a rolled back transaction.
type splittingGateway struct {
	*memGateway
	splits int
}

func (g *splittingGateway) SplitActiveSession(ctx context.Context, s *models.ActiveSession, durationSeconds int, date string, next time.Time, pausedAt *time.Time) (*models.CompletedSession, *models.ActiveSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[s.ID]; !ok {
		return nil, nil, ErrSessionNotFound
	}
	if err := g.failOps["create"]; err != nil {
		return nil, nil, err
	}

	delete(g.active, s.ID)
	g.splits++
	var c *models.CompletedSession
	if durationSeconds > 0 {
		rec := models.CompletedSession{ID: uuid.New(), StudentID: s.StudentID, DurationSeconds: durationSeconds, SessionDate: date}
		g.completed = append(g.completed, rec)
		c = &rec
	}
	created := models.ActiveSession{ID: uuid.New(), StudentID: s.StudentID, StartTime: next}
	if pausedAt != nil {
		p := *pausedAt
		created.IsPaused = true
		created.LastPauseTime = &p
	}
	g.active[created.ID] = created
	out := created
	return c, &out, nil
}

type stubIdentity struct {
	mu       sync.Mutex
	userID   uuid.UUID
	handlers map[int]func(AuthEvent)
	next     int
}

func newStubIdentity(id uuid.UUID) *stubIdentity {
	return &stubIdentity{userID: id, handlers: make(map[int]func(AuthEvent))}
}

func (i *stubIdentity) CurrentUserID(ctx context.Context) (uuid.UUID, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.userID, i.userID != uuid.Nil
}

func (i *stubIdentity) Subscribe(fn func(AuthEvent)) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := i.next
	i.next++
	i.handlers[id] = fn
	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		delete(i.handlers, id)
	}
}

func (i *stubIdentity) emit(evt AuthEvent) {
	i.mu.Lock()
	fns := make([]func(AuthEvent), 0, len(i.handlers))
	for _, fn := range i.handlers {
		fns = append(fns, fn)
	}
	i.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}
