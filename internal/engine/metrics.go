package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by the engine.
type Metrics struct {
	passes     *prometheus.CounterVec
	operations *prometheus.CounterVec
	unchanged  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetmirror_passes_total",
				Help: "Total number of mirror passes",
			},
			[]string{"unit", "mode", "result"},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetmirror_operations_total",
				Help: "Filesystem operations executed by mirror passes",
			},
			[]string{"unit", "op"},
		),
		unchanged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetmirror_unchanged_files_total",
				Help: "Files skipped because they were already identical",
			},
			[]string{"unit"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetmirror_pass_duration_seconds",
				Help:    "Mirror pass duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}
}

func (m *Metrics) observePass(unit string, mode Mode, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(unit, string(mode), result).Inc()
	m.duration.WithLabelValues(string(mode)).Observe(d.Seconds())
}

func (m *Metrics) observeOperation(unit, opType string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(unit, opType).Inc()
}

func (m *Metrics) observeUnchanged(unit string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.unchanged.WithLabelValues(unit).Add(float64(n))
}
