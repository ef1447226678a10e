// Package metrics exposes Prometheus metrics for detection and corrections.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rollcount"

// Metrics holds every rollcount collector. A nil *Metrics is valid and
// records nothing, so components can take one unconditionally.
type Metrics struct {
	Runs          *prometheus.CounterVec
	Attempts      *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	RollsDetected *prometheus.CounterVec
	LastCount     prometheus.Gauge
	ModelLoads    *prometheus.CounterVec
	Corrections   *prometheus.CounterVec
	LastAccuracy  prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.init()
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}
	return m, nil
}

func (m *Metrics) init() {
	m.Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_runs_total",
			Help:      "Completed detection runs partitioned by the method that produced the result.",
		},
		[]string{"method"},
	)
	m.Attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_attempts_total",
			Help:      "Strategy attempts partitioned by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	m.RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Wall time of a full detection run.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method"},
	)
	m.RollsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rolls_detected_total",
			Help:      "Detected rolls partitioned by color label.",
		},
		[]string{"color"},
	)
	m.LastCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_roll_count",
			Help:      "Roll count of the most recent detection run.",
		},
	)
	m.ModelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Learned model acquisitions partitioned by status.",
		},
		[]string{"status"},
	)
	m.Corrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Reconciled correction records partitioned by type.",
		},
		[]string{"type"},
	)
	m.LastAccuracy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_accuracy_percent",
			Help:      "Detection accuracy of the most recent reconciliation.",
		},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs, m.Attempts, m.RunDuration, m.RollsDetected,
		m.LastCount, m.ModelLoads, m.Corrections, m.LastAccuracy,
	}
}

// RecordAttempt counts one strategy attempt.
func (m *Metrics) RecordAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(method, outcome).Inc()
}

// RecordRun records a finished detection run and its color breakdown.
func (m *Metrics) RecordRun(method string, elapsed time.Duration, breakdown map[string]int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(method).Inc()
	m.RunDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	total := 0
	for color, n := range breakdown {
		m.RollsDetected.WithLabelValues(color).Add(float64(n))
		total += n
	}
	m.LastCount.Set(float64(total))
}

// RecordModelLoad counts a model acquisition with status "ready" or "failed".
func (m *Metrics) RecordModelLoad(status string) {
	if m == nil {
		return
	}
	m.ModelLoads.WithLabelValues(status).Inc()
}

// RecordReconcile records the per-type counts and accuracy of one
// reconciliation.
func (m *Metrics) RecordReconcile(counts map[string]int, accuracy float64) {
	if m == nil {
		return
	}
	for typ, n := range counts {
		m.Corrections.WithLabelValues(typ).Add(float64(n))
	}
	m.LastAccuracy.Set(accuracy)
}
