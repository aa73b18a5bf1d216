package stopwatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_ScenarioB_RolloverAtMidnight(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	clock := newFakeClock(time.Date(2026, 3, 10, 23, 50, 0, 0, loc))
	studentID := uuid.New()

	svc := NewService(gw, newStubIdentity(studentID), clock, Options{Location: loc})
	monitor := NewMonitor(svc, gw, nil, time.Minute, 5*time.Minute)

	_, err := svc.Start(ctx)
	require.NoError(t, err)

	clock.Set(time.Date(2026, 3, 11, 0, 0, 0, 0, loc))
	monitor.CheckDayBoundaries(ctx)

	completed := gw.completedFor(studentID)
	require.Len(t, completed, 1)
	assert.Equal(t, "2026-03-10", completed[0].SessionDate)
	assert.Equal(t, 600, completed[0].DurationSeconds)

	rows := gw.activeFor(studentID)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].StartTime.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, loc)))
	assert.False(t, rows[0].IsPaused)

	clock.Advance(90 * time.Second)
	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, "2026-03-11", snap.SessionDate)
	assert.Equal(t, 90, snap.ElapsedSeconds)
	assert.Equal(t, 0, snap.TodayTotalSeconds)
}

func TestMonitor_LateCheckSplitsAtBoundary(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	clock := newFakeClock(time.Date(2026, 3, 10, 23, 30, 0, 0, loc))
	m := NewMachine(uuid.New(), gw, clock, Options{Location: loc})

	require.NoError(t, m.Start(ctx))
	clock.Set(time.Date(2026, 3, 11, 0, 0, 45, 0, loc))

	prev, due := m.NeedsRollover()
	require.True(t, due)
	assert.Equal(t, "2026-03-10", prev)

	rolled, err := m.Rollover(ctx)
	require.NoError(t, err)
	assert.True(t, rolled)

	completed := gw.completedFor(m.StudentID())
	require.Len(t, completed, 1)
	assert.Equal(t, 1800, completed[0].DurationSeconds)

	snap, err := m.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45, snap.ElapsedSeconds, "time after midnight carries into the new day")
}

func TestMonitor_RolloverKeepsPausedSessionPaused(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	clock := newFakeClock(time.Date(2026, 3, 10, 23, 0, 0, 0, loc))
	m := NewMachine(uuid.New(), gw, clock, Options{Location: loc})

	require.NoError(t, m.Start(ctx))
	clock.Advance(40 * time.Minute)
	require.NoError(t, m.Pause(ctx))

	clock.Set(time.Date(2026, 3, 11, 0, 1, 0, 0, loc))
	rolled, err := m.Rollover(ctx)
	require.NoError(t, err)
	require.True(t, rolled)

	completed := gw.completedFor(m.StudentID())
	require.Len(t, completed, 1)
	assert.Equal(t, 40*60, completed[0].DurationSeconds)
	assert.Equal(t, "2026-03-10", completed[0].SessionDate)

	assert.Equal(t, StatePaused, m.State())
	snap, err := m.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.ElapsedSeconds)

	clock.Advance(time.Minute)
	require.NoError(t, m.Resume(ctx))
	clock.Advance(2 * time.Minute)
	snap, err = m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, snap.ElapsedSeconds)
}

func TestMonitor_MultiDayGapClosesOneDayPerCheck(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	clock := newFakeClock(time.Date(2026, 3, 10, 22, 0, 0, 0, loc))
	m := NewMachine(uuid.New(), gw, clock, Options{Location: loc, StaleAfter: 72 * time.Hour})

	require.NoError(t, m.Start(ctx))
	clock.Set(time.Date(2026, 3, 12, 1, 0, 0, 0, loc))

	_, err := m.Rollover(ctx)
	require.NoError(t, err)
	_, err = m.Rollover(ctx)
	require.NoError(t, err)
	rolled, err := m.Rollover(ctx)
	require.NoError(t, err)
	assert.False(t, rolled, "nothing left to split")

	completed := gw.completedFor(m.StudentID())
	require.Len(t, completed, 2)
	assert.Equal(t, "2026-03-10", completed[0].SessionDate)
	assert.Equal(t, 2*3600, completed[0].DurationSeconds)
	assert.Equal(t, "2026-03-11", completed[1].SessionDate)
	assert.Equal(t, 24*3600, completed[1].DurationSeconds)

	snap, err := m.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3600, snap.ElapsedSeconds)
}

func TestMonitor_DiscardsAbandonedSession(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	studentID := uuid.New()

	_, err := gw.CreateActiveSession(ctx, studentID, time.Date(2026, 3, 7, 9, 0, 0, 0, loc), nil)
	require.NoError(t, err)

	clock := newFakeClock(time.Date(2026, 3, 10, 10, 0, 0, 0, loc))
	svc := NewService(gw, nil, clock, Options{Location: loc})
	monitor := NewMonitor(svc, gw, &memLocker{}, time.Minute, 5*time.Minute)

	for i := 0; i < 4; i++ {
		monitor.CheckDayBoundaries(ctx)
		clock.Advance(time.Minute)
	}

	assert.Empty(t, gw.completedFor(studentID))
	assert.Empty(t, gw.activeFor(studentID))
	assert.Equal(t, StateIdle, svc.Machine(studentID).State())
}

func TestMonitor_EvictsQuietIdleMachines(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, loc))
	idle, running := uuid.New(), uuid.New()

	svc := NewService(gw, newStubIdentity(running), clock, Options{Location: loc})
	monitor := NewMonitor(svc, gw, nil, time.Minute, 5*time.Minute)

	_, err := svc.SnapshotFor(ctx, idle)
	require.NoError(t, err)
	_, err = svc.Start(ctx)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	monitor.CheckDayBoundaries(ctx)
	assert.Len(t, svc.Machines(), 2, "recently used machines stay")

	clock.Advance(DefaultIdleEviction)
	monitor.CheckDayBoundaries(ctx)

	machines := svc.Machines()
	require.Len(t, machines, 1)
	assert.Equal(t, running, machines[0].StudentID())
}

func TestMonitor_PicksUpSessionsNotYetLoaded(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	studentID := uuid.New()

	_, err := gw.CreateActiveSession(ctx, studentID, time.Date(2026, 3, 10, 23, 40, 0, 0, loc), nil)
	require.NoError(t, err)

	clock := newFakeClock(time.Date(2026, 3, 11, 0, 0, 30, 0, loc))
	svc := NewService(gw, nil, clock, Options{Location: loc})
	NewMonitor(svc, gw, nil, time.Minute, 5*time.Minute).CheckDayBoundaries(ctx)

	completed := gw.completedFor(studentID)
	require.Len(t, completed, 1)
	assert.Equal(t, 1200, completed[0].DurationSeconds)
	assert.Len(t, gw.activeFor(studentID), 1)
}

func TestMonitor_LockHeldElsewhereSkipsRollover(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	studentID := uuid.New()
	clock := newFakeClock(time.Date(2026, 3, 10, 23, 50, 0, 0, loc))

	svc := NewService(gw, newStubIdentity(studentID), clock, Options{Location: loc})
	_, err := svc.Start(ctx)
	require.NoError(t, err)

	locker := &memLocker{}
	_, err = locker.TryLock(ctx, "stopwatch:rollover:"+studentID.String()+":2026-03-10", time.Minute)
	require.NoError(t, err)

	clock.Set(time.Date(2026, 3, 11, 0, 0, 10, 0, loc))
	NewMonitor(svc, nil, locker, time.Minute, 5*time.Minute).CheckDayBoundaries(ctx)

	assert.Empty(t, gw.completedFor(studentID))
}

func TestMonitor_IdleMachineTracksNewDate(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	clock := newFakeClock(time.Date(2026, 3, 10, 23, 59, 0, 0, loc))
	m := NewMachine(uuid.New(), gw, clock, Options{Location: loc})
	require.NoError(t, m.Rehydrate(ctx))

	clock.Advance(2 * time.Minute)
	_, due := m.NeedsRollover()
	assert.False(t, due)

	snap, err := m.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-11", snap.SessionDate)
}

func TestMonitor_CheckWarnings(t *testing.T) {
	ctx := context.Background()
	loc := istanbul(t)
	gw := newMemGateway()
	clock := newFakeClock(time.Date(2026, 3, 10, 23, 20, 0, 0, loc))
	studentID := uuid.New()
	svc := NewService(gw, newStubIdentity(studentID), clock, Options{Location: loc})
	monitor := NewMonitor(svc, nil, nil, 0, 0)

	_, err := svc.Start(ctx)
	require.NoError(t, err)
	monitor.CheckWarnings()

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.WarningActive)

	snap, _, err = svc.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, snap.WarningActive)
}

func TestMonitor_RunStopsWithContext(t *testing.T) {
	svc := NewService(newMemGateway(), nil, nil, Options{})
	monitor := NewMonitor(svc, nil, nil, 10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
