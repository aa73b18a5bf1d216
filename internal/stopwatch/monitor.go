package stopwatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"coachdesk-backend/internal/metrics"
)

const (
	DefaultDayCheckInterval     = 60 * time.Second
	DefaultWarningCheckInterval = 5 * time.Minute

	// DefaultIdleEviction is how long an Idle machine stays in memory
	// without being used.
	DefaultIdleEviction = 30 * time.Minute

	// rolloverWorkers caps how many students are split concurrently.
	rolloverWorkers = 5
)

// Monitor runs the day-boundary and midnight-warning checks over every
// machine of a Service.
type Monitor struct {
	service         *Service
	lister          ActiveSessionLister
	locker          Locker
	dayInterval     time.Duration
	warningInterval time.Duration
	stopChan        chan struct{}
}

// NewMonitor builds a monitor. lister and locker may be nil: without a
// lister only machines already in memory are checked, without a locker every
// process rolls over on its own.
func NewMonitor(service *Service, lister ActiveSessionLister, locker Locker, dayInterval, warningInterval time.Duration) *Monitor {
	if dayInterval <= 0 {
		dayInterval = DefaultDayCheckInterval
	}
	if warningInterval <= 0 {
		warningInterval = DefaultWarningCheckInterval
	}
	return &Monitor{
		service:         service,
		lister:          lister,
		locker:          locker,
		dayInterval:     dayInterval,
		warningInterval: warningInterval,
		stopChan:        make(chan struct{}),
	}
}

// Run starts both checks and blocks until ctx is done or Stop is called.
func (mo *Monitor) Run(ctx context.Context) error {
	done := make(chan struct{}, 2)
	go func() {
		mo.loop(ctx, mo.dayInterval, mo.CheckDayBoundaries)
		done <- struct{}{}
	}()
	go func() {
		mo.loop(ctx, mo.warningInterval, func(context.Context) { mo.CheckWarnings() })
		done <- struct{}{}
	}()

	log.Printf("Day-boundary monitor started (date check %s, warning check %s)", mo.dayInterval, mo.warningInterval)

	<-done
	<-done
	return nil
}

func (mo *Monitor) Stop() {
	select {
	case <-mo.stopChan:
		return
	default:
		close(mo.stopChan)
	}
}

// loop runs fn once per tick. A check that outlasts the interval makes the
// ticker drop the ticks it missed, so checks never queue up.
func (mo *Monitor) loop(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mo.stopChan:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// CheckDayBoundaries rolls over every active machine whose recorded date no
// longer matches the reference date, then drops machines left idle.
func (mo *Monitor) CheckDayBoundaries(ctx context.Context) {
	if mo.lister != nil {
		ids, err := mo.lister.ListActiveStudentIDs(ctx)
		if err != nil {
			log.Printf("day-boundary monitor: failed to list active sessions: %v", err)
		}
		for _, id := range ids {
			m := mo.service.Machine(id)
			if err := m.Load(ctx); err != nil {
				log.Printf("day-boundary monitor: failed to load student %s: %v", id, err)
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(rolloverWorkers)
	for _, m := range mo.service.Machines() {
		prevDate, due := m.NeedsRollover()
		if !due {
			continue
		}
		m, prevDate := m, prevDate
		g.Go(func() error {
			mo.rollover(ctx, m, prevDate)
			return nil
		})
	}
	g.Wait()

	if n := mo.service.EvictQuiet(DefaultIdleEviction); n > 0 {
		log.Printf("day-boundary monitor: evicted %d idle machines", n)
	}
}

func (mo *Monitor) rollover(ctx context.Context, m *Machine, prevDate string) {
	if mo.locker != nil {
		key := fmt.Sprintf("stopwatch:rollover:%s:%s", m.StudentID(), prevDate)
		ok, err := mo.locker.TryLock(ctx, key, 2*mo.dayInterval)
		if err != nil {
			log.Printf("day-boundary monitor: lock %s failed: %v", key, err)
			return
		}
		if !ok {
			return
		}
	}

	if _, err := m.Rollover(ctx); err != nil {
		log.Printf("day-boundary monitor: rollover failed for student %s: %v", m.StudentID(), err)
	}
}

// CheckWarnings refreshes the midnight warning of every machine.
func (mo *Monitor) CheckWarnings() {
	active := 0
	for _, m := range mo.service.Machines() {
		if m.CheckMidnightWarning() {
			active++
		}
	}
	metrics.MidnightWarnings.Set(float64(active))
}
