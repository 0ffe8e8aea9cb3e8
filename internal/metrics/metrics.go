// Package metrics holds the Prometheus collectors for the execution core.
//
// Collectors are registered on the default registry through promauto and
// exposed by the server at /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts sandbox runs by classification. Runs that fail with an
	// infrastructure error are counted as "internal_error".
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cjudge_runs_total",
			Help: "Total number of compile-and-run invocations",
		},
		[]string{"classification"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cjudge_run_duration_ms",
			Help:    "Wall time of one sandboxed compile-and-run in milliseconds",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 20000, 35000},
		},
		[]string{"classification"},
	)

	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cjudge_verdicts_total",
			Help: "Total number of judged submissions by verdict",
		},
		[]string{"verdict"},
	)

	ScreenerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cjudge_screener_rejections_total",
			Help: "Submissions rejected before execution, by capability class",
		},
		[]string{"capability"},
	)

	SlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cjudge_sandbox_slots_in_use",
			Help: "Number of sandbox containers currently running",
		},
	)

	ContainerCreationTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cjudge_container_creation_ms",
			Help:    "Time to create and start a sandbox container",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cjudge_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// ObserveRun records one finished run.
func ObserveRun(classification string, durationMs int64) {
	RunsTotal.WithLabelValues(classification).Inc()
	RunDuration.WithLabelValues(classification).Observe(float64(durationMs))
}
