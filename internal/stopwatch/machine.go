package stopwatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"coachdesk-backend/internal/metrics"
	"coachdesk-backend/internal/models"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

const (
	defaultStaleAfter    = 24 * time.Hour
	defaultWarningWindow = 60 * time.Minute
)

type Options struct {
	// Location is the reference timezone for every date computation.
	Location      *time.Location
	StaleAfter    time.Duration
	WarningWindow time.Duration
}

func DefaultOptions() Options {
	loc, err := time.LoadLocation(DefaultReferenceTimezone)
	if err != nil {
		loc = time.UTC
	}
	return Options{
		Location:      loc,
		StaleAfter:    defaultStaleAfter,
		WarningWindow: defaultWarningWindow,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Location == nil {
		o.Location = d.Location
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = d.StaleAfter
	}
	if o.WarningWindow <= 0 {
		o.WarningWindow = d.WarningWindow
	}
	return o
}

// Snapshot is the read-only view handed to the UI.
type Snapshot struct {
	StudentID         uuid.UUID             `json:"student_id"`
	State             State                 `json:"state"`
	ElapsedSeconds    int                   `json:"elapsed_seconds"`
	Elapsed           string                `json:"elapsed"`
	TodayTotalSeconds int                   `json:"today_total_seconds"`
	TodayTotal        string                `json:"today_total"`
	WarningActive     bool                  `json:"warning_active"`
	SessionDate       string                `json:"session_date"`
	Session           *models.ActiveSession `json:"session,omitempty"`
}

// Machine is the stopwatch of a single student. The store is authoritative:
// local fields are a cache that every command reconciles before acting.
type Machine struct {
	mu        sync.Mutex
	studentID uuid.UUID
	gw        Gateway
	agg       *Aggregator
	clock     Clock
	opts      Options

	loaded      bool
	session     *models.ActiveSession
	currentDate string
	todayTotal  int
	totalDate   string
	totalStale  bool
	warning     bool
	pending     *restart
	lastUsed    time.Time
}

// restart is the successor of a rolled-over session whose creation failed.
// It is retried on the next rollover check.
type restart struct {
	start    time.Time
	pausedAt *time.Time
}

func NewMachine(studentID uuid.UUID, gw Gateway, clock Clock, opts Options) *Machine {
	if clock == nil {
		clock = RealClock{}
	}
	opts = opts.withDefaults()
	return &Machine{
		studentID:  studentID,
		gw:         gw,
		agg:        NewAggregator(gw, opts.Location),
		clock:      clock,
		opts:       opts,
		totalStale: true,
		lastUsed:   clock.Now(),
	}
}

func (m *Machine) touch() {
	m.lastUsed = m.clock.Now()
}

// Quiet reports whether the machine is Idle and has not served a command or
// snapshot for at least d.
func (m *Machine) Quiet(d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session == nil && m.pending == nil && m.clock.Now().Sub(m.lastUsed) >= d
}

func (m *Machine) isStale(s *models.ActiveSession, now time.Time) bool {
	return now.Sub(s.StartTime) > m.opts.StaleAfter
}

func (m *Machine) StudentID() uuid.UUID {
	return m.studentID
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	switch {
	case m.session == nil:
		return StateIdle
	case m.session.IsPaused:
		return StatePaused
	default:
		return StateRunning
	}
}

// Rehydrate loads the student's active session, entering Running or Paused
// when one exists.
func (m *Machine) Rehydrate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch()
	return m.refresh(ctx)
}

// Load rehydrates the machine unless it has been loaded already.
func (m *Machine) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLoaded(ctx)
}

func (m *Machine) ensureLoaded(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	return m.refresh(ctx)
}

func (m *Machine) refresh(ctx context.Context) error {
	s, err := m.gw.GetActiveSession(ctx, m.studentID)
	if err != nil {
		return m.fail("get_active_session", err)
	}
	m.adopt(s)
	return nil
}

func (m *Machine) adopt(s *models.ActiveSession) {
	switch {
	case s == nil:
		if m.session != nil || !m.loaded {
			m.currentDate = m.dateOf(m.clock.Now())
			m.totalStale = true
		}
		m.warning = false
	case m.session == nil || m.session.ID != s.ID:
		m.currentDate = m.dateOf(s.StartTime)
		m.pending = nil
	}
	m.session = s
	m.loaded = true
}

func (m *Machine) Start(ctx context.Context) (err error) {
	defer func() { metrics.Transitions.WithLabelValues("start", metrics.Result(err)).Inc() }()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch()
	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}

	// A stale session counts as abandoned: replaceActive logs and drops it.
	now := m.clock.Now()
	if m.session != nil && !m.isStale(m.session, now) {
		return transitionErr("start", m.stateLocked())
	}

	s, err := m.replaceActive(ctx, now, nil)
	if err != nil {
		return err
	}

	m.session = s
	m.pending = nil
	m.currentDate = m.dateOf(now)
	m.warning = false
	return nil
}

// replaceActive removes any prior session of the student and creates a new
// one starting at start.
func (m *Machine) replaceActive(ctx context.Context, start time.Time, pausedAt *time.Time) (*models.ActiveSession, error) {
	prior, err := m.gw.GetActiveSession(ctx, m.studentID)
	if err != nil {
		return nil, m.fail("get_active_session", err)
	}

	if prior != nil {
		if start.Sub(prior.StartTime) > m.opts.StaleAfter {
			log.Printf("stopwatch: %v: student %s session %s started %s, discarding",
				ErrStaleSession, m.studentID, prior.ID, prior.StartTime.Format(time.RFC3339))
		} else {
			log.Printf("stopwatch: replacing active session %s for student %s", prior.ID, m.studentID)
		}
		if err := m.gw.DeleteActiveSession(ctx, prior.ID); err != nil {
			return nil, m.fail("delete_active_session", err)
		}
	}

	s, err := m.gw.CreateActiveSession(ctx, m.studentID, start, pausedAt)
	if err != nil {
		return nil, m.fail("create_active_session", err)
	}
	return s, nil
}

// Pause is a no-op when the session is already paused.
func (m *Machine) Pause(ctx context.Context) (err error) {
	defer func() { metrics.Transitions.WithLabelValues("pause", metrics.Result(err)).Inc() }()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch()
	if err := m.refresh(ctx); err != nil {
		return err
	}
	if m.session == nil {
		return transitionErr("pause", StateIdle)
	}
	if m.session.IsPaused {
		return nil
	}

	now := m.clock.Now()
	s, err := m.gw.UpdateActiveSession(ctx, m.session.ID, models.ActiveSessionPatch{
		IsPaused:        true,
		LastPauseTime:   &now,
		TotalPausedTime: m.session.TotalPausedTime,
	})
	if errors.Is(err, ErrSessionNotFound) {
		m.adopt(nil)
		return transitionErr("pause", StateIdle)
	}
	if err != nil {
		return m.fail("update_active_session", err)
	}

	m.session = s
	return nil
}

func (m *Machine) Resume(ctx context.Context) (err error) {
	defer func() { metrics.Transitions.WithLabelValues("resume", metrics.Result(err)).Inc() }()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch()
	if err := m.refresh(ctx); err != nil {
		return err
	}
	if m.session == nil || !m.session.IsPaused {
		return transitionErr("resume", m.stateLocked())
	}

	total := m.session.TotalPausedTime
	if m.session.LastPauseTime != nil {
		if d := m.clock.Now().Sub(*m.session.LastPauseTime).Milliseconds(); d > 0 {
			total += d
		}
	} else {
		log.Printf("stopwatch: session %s paused without a pause time, resuming anyway", m.session.ID)
	}

	s, err := m.gw.UpdateActiveSession(ctx, m.session.ID, models.ActiveSessionPatch{
		IsPaused:        false,
		LastPauseTime:   nil,
		TotalPausedTime: total,
	})
	if errors.Is(err, ErrSessionNotFound) {
		m.adopt(nil)
		return transitionErr("resume", StateIdle)
	}
	if err != nil {
		return m.fail("update_active_session", err)
	}

	m.session = s
	return nil
}

// Stop flushes the elapsed time into a completed session dated today and
// returns to Idle. The returned record is nil when nothing was studied.
func (m *Machine) Stop(ctx context.Context) (completed *models.CompletedSession, err error) {
	defer func() { metrics.Transitions.WithLabelValues("stop", metrics.Result(err)).Inc() }()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch()
	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	if m.session == nil {
		return nil, transitionErr("stop", StateIdle)
	}

	now := m.clock.Now()
	date := m.dateOf(now)
	completed, err = m.finalize(ctx, m.session, Elapsed(m.session, now), date)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			m.adopt(nil)
			return nil, transitionErr("stop", StateIdle)
		}
		return nil, err
	}

	m.session = nil
	m.currentDate = date
	m.warning = false
	m.totalStale = true
	m.reloadTotal(ctx, now)
	return completed, nil
}

func (m *Machine) finalize(ctx context.Context, s *models.ActiveSession, elapsed int, date string) (*models.CompletedSession, error) {
	if f, ok := m.gw.(Finalizer); ok {
		c, err := f.FinalizeActiveSession(ctx, s, elapsed, date)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return nil, err
			}
			return nil, m.fail("finalize_active_session", err)
		}
		metrics.StudiedSeconds.Add(float64(elapsed))
		return c, nil
	}

	var c *models.CompletedSession
	if elapsed > 0 {
		var err error
		c, err = m.gw.AppendCompletedSession(ctx, m.studentID, elapsed, date)
		if err != nil {
			return nil, m.fail("append_completed_session", err)
		}
	}
	if err := m.gw.DeleteActiveSession(ctx, s.ID); err != nil {
		return nil, m.fail("delete_active_session", err)
	}
	metrics.StudiedSeconds.Add(float64(elapsed))
	return c, nil
}

// NeedsRollover reports whether the reference date has moved past the date
// recorded when the current session started. Idle machines only record the
// new date.
func (m *Machine) NeedsRollover() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return "", false
	}
	today := m.dateOf(m.clock.Now())
	if m.session == nil {
		if m.pending != nil {
			return m.currentDate, true
		}
		m.currentDate = today
		return "", false
	}
	return m.currentDate, m.currentDate != today
}

// Rollover splits an active session at the end of its recorded date: the
// time up to that midnight is saved under the old date and a new session
// starts at the boundary in the same state. A gap of several days is closed
// one day per call. Sessions older than the staleness threshold are
// abandoned timers and are dropped without saving anything.
func (m *Machine) Rollover(ctx context.Context) (rolled bool, err error) {
	defer func() {
		if rolled || err != nil {
			metrics.Transitions.WithLabelValues("rollover", metrics.Result(err)).Inc()
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.refresh(ctx); err != nil {
		return false, err
	}

	now := m.clock.Now()
	if m.session == nil && m.pending != nil {
		if err := m.createPending(ctx); err != nil {
			return false, err
		}
		log.Printf("stopwatch: restarted rolled-over session for student %s", m.studentID)
		m.reloadTotal(ctx, now)
		return true, nil
	}

	s := m.session
	if s == nil || m.currentDate == m.dateOf(now) {
		return false, nil
	}
	if m.isStale(s, now) {
		return false, m.discardStale(ctx, s)
	}

	prevDate := m.currentDate
	boundary, err := EndOfDate(prevDate, m.opts.Location)
	if err != nil {
		return false, err
	}
	if boundary.After(now) {
		boundary = now
	}

	elapsed := elapsedAt(s, boundary)
	var pausedAt *time.Time
	if s.IsPaused {
		p := boundary
		if s.LastPauseTime != nil && s.LastPauseTime.After(boundary) {
			p = *s.LastPauseTime
		}
		pausedAt = &p
	}

	next, err := m.split(ctx, s, elapsed, prevDate, boundary, pausedAt)
	if errors.Is(err, ErrSessionNotFound) {
		m.adopt(nil)
		return false, nil
	}
	if next == nil && m.pending == nil {
		// Nothing was committed.
		return false, err
	}

	m.session = next
	m.currentDate = m.dateOf(boundary)
	m.totalStale = true
	m.warning = false
	metrics.Rollovers.Inc()
	log.Printf("stopwatch: rolled over student %s: %ds saved to %s", m.studentID, elapsed, prevDate)
	m.reloadTotal(ctx, now)
	return true, err
}

// split closes s under date and opens its successor at next. With a Splitter
// gateway both happen in one step. Otherwise a failed create leaves the
// successor pending for the next check.
func (m *Machine) split(ctx context.Context, s *models.ActiveSession, elapsed int, date string, next time.Time, pausedAt *time.Time) (*models.ActiveSession, error) {
	if sp, ok := m.gw.(Splitter); ok {
		_, created, err := sp.SplitActiveSession(ctx, s, elapsed, date, next, pausedAt)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return nil, err
			}
			return nil, m.fail("split_active_session", err)
		}
		metrics.StudiedSeconds.Add(float64(elapsed))
		return created, nil
	}

	if _, err := m.finalize(ctx, s, elapsed, date); err != nil {
		return nil, err
	}
	m.session = nil
	m.pending = &restart{start: next, pausedAt: pausedAt}
	if err := m.createPending(ctx); err != nil {
		log.Printf("stopwatch: student %s: successor session pending: %v", m.studentID, err)
		return nil, err
	}
	return m.session, nil
}

func (m *Machine) createPending(ctx context.Context) error {
	s, err := m.replaceActive(ctx, m.pending.start, m.pending.pausedAt)
	if err != nil {
		return err
	}
	m.session = s
	m.pending = nil
	m.currentDate = m.dateOf(s.StartTime)
	return nil
}

func (m *Machine) discardStale(ctx context.Context, s *models.ActiveSession) error {
	log.Printf("stopwatch: %v: student %s session %s started %s, discarding without saving",
		ErrStaleSession, m.studentID, s.ID, s.StartTime.Format(time.RFC3339))
	if err := m.gw.DeleteActiveSession(ctx, s.ID); err != nil {
		return m.fail("delete_active_session", err)
	}
	metrics.StaleDiscards.Inc()
	m.adopt(nil)
	return nil
}

// CheckMidnightWarning turns the warning on while running inside the
// warning window before reference midnight, and off otherwise.
func (m *Machine) CheckMidnightWarning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := m.session != nil && !m.session.IsPaused
	m.warning = running && UntilMidnight(m.clock.Now(), m.opts.Location) < m.opts.WarningWindow
	return m.warning
}

// Snapshot re-reads the store and returns the current view.
func (m *Machine) Snapshot(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch()
	if err := m.refresh(ctx); err != nil {
		return Snapshot{}, err
	}
	return m.viewLocked(ctx)
}

// View returns the current view from local state, loading it first if the
// machine has never been loaded.
func (m *Machine) View(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch()
	if err := m.ensureLoaded(ctx); err != nil {
		return Snapshot{}, err
	}
	return m.viewLocked(ctx)
}

func (m *Machine) viewLocked(ctx context.Context) (Snapshot, error) {
	now := m.clock.Now()
	if err := m.ensureTotal(ctx, now); err != nil {
		return Snapshot{}, err
	}

	elapsed := Elapsed(m.session, now)
	snap := Snapshot{
		StudentID:         m.studentID,
		State:             m.stateLocked(),
		ElapsedSeconds:    elapsed,
		Elapsed:           FormatClock(elapsed),
		TodayTotalSeconds: m.todayTotal,
		TodayTotal:        FormatTotal(m.todayTotal),
		WarningActive:     m.warning,
		SessionDate:       m.currentDate,
	}
	if m.session != nil {
		s := *m.session
		snap.Session = &s
	}
	return snap, nil
}

func (m *Machine) ensureTotal(ctx context.Context, now time.Time) error {
	today := m.dateOf(now)
	if !m.totalStale && m.totalDate == today {
		return nil
	}

	total, err := m.agg.Total(ctx, m.studentID, today)
	if err != nil {
		return m.fail("sum_completed_sessions", err)
	}
	m.todayTotal, m.totalDate, m.totalStale = total, today, false
	return nil
}

func (m *Machine) reloadTotal(ctx context.Context, now time.Time) {
	if err := m.ensureTotal(ctx, now); err != nil {
		log.Printf("stopwatch: failed to reload today's total for student %s: %v", m.studentID, err)
	}
}

func (m *Machine) dateOf(t time.Time) string {
	return DateIn(t, m.opts.Location)
}

func (m *Machine) fail(op string, err error) error {
	metrics.PersistenceFailures.WithLabelValues(op).Inc()
	return persistenceErr(op, err)
}
