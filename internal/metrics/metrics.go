package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions counts stopwatch commands by transition and result.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stopwatch_transitions_total",
		Help: "Stopwatch transitions by name and result",
	}, []string{"transition", "result"})

	Rollovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopwatch_rollovers_total",
		Help: "Sessions split at a reference-timezone day boundary",
	})

	StaleDiscards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopwatch_stale_discards_total",
		Help: "Abandoned active sessions dropped without being saved",
	})

	StudiedSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopwatch_studied_seconds_total",
		Help: "Seconds written to completed study sessions",
	})

	PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stopwatch_persistence_failures_total",
		Help: "Gateway calls that returned an error, by operation",
	}, []string{"op"})

	LoadedMachines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stopwatch_loaded_machines",
		Help: "Student stopwatches held in memory",
	})

	MidnightWarnings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stopwatch_midnight_warnings",
		Help: "Running stopwatches currently showing the midnight warning",
	})
)

// Result maps an error to a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
