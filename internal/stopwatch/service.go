package stopwatch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"coachdesk-backend/internal/metrics"
	"coachdesk-backend/internal/models"
)

// Service resolves the calling student and dispatches to that student's
// Machine. Machines are created on first use and rehydrated from the store.
type Service struct {
	mu       sync.Mutex
	machines map[uuid.UUID]*Machine

	gw       Gateway
	identity IdentityProvider
	clock    Clock
	opts     Options
	agg      *Aggregator

	unsubscribe func()
}

func NewService(gw Gateway, identity IdentityProvider, clock Clock, opts Options) *Service {
	if clock == nil {
		clock = RealClock{}
	}
	opts = opts.withDefaults()

	s := &Service{
		machines: make(map[uuid.UUID]*Machine),
		gw:       gw,
		identity: identity,
		clock:    clock,
		opts:     opts,
		agg:      NewAggregator(gw, opts.Location),
	}
	if identity != nil {
		s.unsubscribe = identity.Subscribe(s.handleAuthEvent)
	}
	return s
}

// Close detaches the service from its identity provider.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Service) handleAuthEvent(evt AuthEvent) {
	if evt.Type == AuthSignedOut {
		s.Evict(evt.UserID)
	}
}

// Evict drops the cached machine of a student. The next request rehydrates
// it from the store.
func (s *Service) Evict(studentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.machines[studentID]; ok {
		delete(s.machines, studentID)
		metrics.LoadedMachines.Set(float64(len(s.machines)))
		log.Printf("stopwatch: evicted machine for student %s", studentID)
	}
}

// EvictQuiet drops every Idle machine that has not been used for idle and
// returns how many were dropped.
func (s *Service) EvictQuiet(idle time.Duration) int {
	var quiet []*Machine
	for _, m := range s.Machines() {
		if m.Quiet(idle) {
			quiet = append(quiet, m)
		}
	}
	if len(quiet) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range quiet {
		if s.machines[m.StudentID()] == m {
			delete(s.machines, m.StudentID())
			n++
		}
	}
	metrics.LoadedMachines.Set(float64(len(s.machines)))
	return n
}

// Machine returns the machine of a student, creating it when needed.
func (s *Service) Machine(studentID uuid.UUID) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[studentID]
	if !ok {
		m = NewMachine(studentID, s.gw, s.clock, s.opts)
		s.machines[studentID] = m
		metrics.LoadedMachines.Set(float64(len(s.machines)))
	}
	return m
}

// Machines returns every machine currently held in memory.
func (s *Service) Machines() []*Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Machine, 0, len(s.machines))
	for _, m := range s.machines {
		out = append(out, m)
	}
	return out
}

func (s *Service) current(ctx context.Context) (*Machine, error) {
	if s.identity == nil {
		return nil, ErrNotAuthenticated
	}
	id, ok := s.identity.CurrentUserID(ctx)
	if !ok || id == uuid.Nil {
		return nil, ErrNotAuthenticated
	}
	return s.Machine(id), nil
}

func (s *Service) Start(ctx context.Context) (Snapshot, error) {
	m, err := s.current(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.Start(ctx); err != nil {
		return Snapshot{}, err
	}
	return m.View(ctx)
}

func (s *Service) Pause(ctx context.Context) (Snapshot, error) {
	m, err := s.current(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.Pause(ctx); err != nil {
		return Snapshot{}, err
	}
	return m.View(ctx)
}

func (s *Service) Resume(ctx context.Context) (Snapshot, error) {
	m, err := s.current(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.Resume(ctx); err != nil {
		return Snapshot{}, err
	}
	return m.View(ctx)
}

// Stop returns the resulting snapshot and the completed session, which is
// nil when the elapsed time was zero.
func (s *Service) Stop(ctx context.Context) (Snapshot, *models.CompletedSession, error) {
	m, err := s.current(ctx)
	if err != nil {
		return Snapshot{}, nil, err
	}
	completed, err := m.Stop(ctx)
	if err != nil {
		return Snapshot{}, nil, err
	}
	snap, err := m.View(ctx)
	return snap, completed, err
}

func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	m, err := s.current(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return m.Snapshot(ctx)
}

// SnapshotFor returns the view of any student, for coach screens.
func (s *Service) SnapshotFor(ctx context.Context, studentID uuid.UUID) (Snapshot, error) {
	return s.Machine(studentID).Snapshot(ctx)
}

// DailyTotals returns the week strip totals (yesterday through the next
// five days) of the calling student.
func (s *Service) DailyTotals(ctx context.Context) ([]models.DailyTotal, error) {
	m, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.DailyTotalsFor(ctx, m.StudentID())
}

func (s *Service) DailyTotalsFor(ctx context.Context, studentID uuid.UUID) ([]models.DailyTotal, error) {
	return s.agg.DailyTotals(ctx, studentID, DateRange(s.clock.Now(), s.opts.Location))
}
