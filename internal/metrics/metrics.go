package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for conncheck. A nil *Metrics is
// valid and turns every recording call into a no-op, so one-shot runs
// can skip the registry entirely.
type Metrics struct {
	registry           *prometheus.Registry
	runsTotal          prometheus.Counter
	checkFailuresTotal *prometheus.CounterVec
	sectionErrorsTotal prometheus.Counter
	runDurationSeconds prometheus.Histogram
	lastRunTimestamp   prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conncheck_runs_total",
			Help: "Total diagnostic runs executed.",
		}),
		checkFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conncheck_check_failures_total",
			Help: "Total failed checks by component.",
		}, []string{"component"}),
		sectionErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conncheck_section_errors_total",
			Help: "Total sections that aborted with an error.",
		}),
		runDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "conncheck_run_duration_seconds",
			Help:    "Duration of diagnostic runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conncheck_last_run_timestamp",
			Help: "Unix timestamp of the last completed run.",
		}),
	}

	registry.MustRegister(
		m.runsTotal,
		m.checkFailuresTotal,
		m.sectionErrorsTotal,
		m.runDurationSeconds,
		m.lastRunTimestamp,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(duration time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.runsTotal.Inc()
	m.runDurationSeconds.Observe(duration.Seconds())
	m.lastRunTimestamp.Set(float64(finished.Unix()))
}

// IncCheckFailure increments the failure counter for one component.
func (m *Metrics) IncCheckFailure(component string) {
	if m == nil {
		return
	}
	m.checkFailuresTotal.WithLabelValues(component).Inc()
}

// AddSectionErrors adds the number of sections that errored in one run.
func (m *Metrics) AddSectionErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sectionErrorsTotal.Add(float64(n))
}
