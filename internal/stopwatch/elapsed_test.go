package stopwatch

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsedSeconds(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pause := start.Add(90 * time.Second)

	tests := []struct {
		name      string
		isPaused  bool
		lastPause *time.Time
		pausedMs  int64
		now       time.Time
		want      int
	}{
		{"running", false, nil, 0, start.Add(42 * time.Second), 42},
		{"running minus pauses", false, nil, 12_000, start.Add(42 * time.Second), 30},
		{"floors partial seconds", false, nil, 0, start.Add(1999 * time.Millisecond), 1},
		{"paused freezes at pause time", true, &pause, 0, start.Add(time.Hour), 90},
		{"paused minus earlier pauses", true, &pause, 30_000, start.Add(time.Hour), 60},
		{"paused without pause time uses now", true, nil, 0, start.Add(5 * time.Second), 5},
		{"clock before start clamps", false, nil, 0, start.Add(-time.Minute), 0},
		{"pauses exceeding runtime clamp", false, nil, 120_000, start.Add(time.Minute), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ElapsedSeconds(start, tc.isPaused, tc.lastPause, tc.pausedMs, tc.now)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestElapsedSeconds_MatchesFormula(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		runMs := rng.Int63n(48 * 3600 * 1000)
		pausedMs := rng.Int63n(runMs + 1)
		now := start.Add(time.Duration(runMs) * time.Millisecond)

		got := ElapsedSeconds(start, false, nil, pausedMs, now)

		assert.GreaterOrEqual(t, got, 0)
		assert.Equal(t, int((runMs-pausedMs)/1000), got, "run=%dms paused=%dms", runMs, pausedMs)
	}
}

func TestElapsed_NilSession(t *testing.T) {
	assert.Equal(t, 0, Elapsed(nil, time.Now()))
}
