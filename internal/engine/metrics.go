package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters and histograms for the scheduling
// core. Optional: a nil *Metrics disables instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	passesTotal        *prometheus.CounterVec
	passDuration       prometheus.Histogram
	alarmsScheduled    prometheus.Counter
	alarmsUpdated      prometheus.Counter
	alarmsRemoved      prometheus.Counter
	registrationErrors prometheus.Counter
	driftDetected      prometheus.Counter
	reconcileFailures  prometheus.Counter
}

// NewMetrics constructs a metrics registry and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	passesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chime",
			Subsystem: "pass",
			Name:      "runs_total",
			Help:      "Total pass invocations by kind and outcome.",
		},
		[]string{"kind", "result"},
	)
	passDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chime",
			Subsystem: "pass",
			Name:      "duration_seconds",
			Help:      "Wall time of completed scheduling passes.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
	alarmsScheduled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chime", Subsystem: "alarms", Name: "scheduled_total",
		Help: "Alarms newly created by scheduling passes.",
	})
	alarmsUpdated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chime", Subsystem: "alarms", Name: "updated_total",
		Help: "Alarms updated in place by scheduling passes.",
	})
	alarmsRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chime", Subsystem: "alarms", Name: "removed_total",
		Help: "Orphaned alarms removed by scheduling passes.",
	})
	registrationErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chime", Subsystem: "host", Name: "registration_failures_total",
		Help: "Per-alarm host registration failures.",
	})
	driftDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chime", Subsystem: "reconcile", Name: "drift_detected_total",
		Help: "Alarms found missing from the host scheduler.",
	})
	reconcileFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chime", Subsystem: "reconcile", Name: "repair_failures_total",
		Help: "Failed drift repair attempts.",
	})

	registry.MustRegister(
		passesTotal,
		passDuration,
		alarmsScheduled,
		alarmsUpdated,
		alarmsRemoved,
		registrationErrors,
		driftDetected,
		reconcileFailures,
	)

	return &Metrics{
		registry:           registry,
		passesTotal:        passesTotal,
		passDuration:       passDuration,
		alarmsScheduled:    alarmsScheduled,
		alarmsUpdated:      alarmsUpdated,
		alarmsRemoved:      alarmsRemoved,
		registrationErrors: registrationErrors,
		driftDetected:      driftDetected,
		reconcileFailures:  reconcileFailures,
	}
}

// Handler returns an http.Handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observePass(kind, result string, seconds float64) {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues(kind, result).Inc()
	if kind == "schedule" {
		m.passDuration.Observe(seconds)
	}
}

func (m *Metrics) observeSchedule(scheduled, updated, removed, regFailures int) {
	if m == nil {
		return
	}
	m.alarmsScheduled.Add(float64(scheduled))
	m.alarmsUpdated.Add(float64(updated))
	m.alarmsRemoved.Add(float64(removed))
	m.registrationErrors.Add(float64(regFailures))
}

func (m *Metrics) observeDrift(detected, failures int) {
	if m == nil {
		return
	}
	m.driftDetected.Add(float64(detected))
	m.reconcileFailures.Add(float64(failures))
}
