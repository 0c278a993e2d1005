// Package metrics exposes Prometheus collectors for the replica engine.
//
// All methods are safe on a nil *Metrics, so the engine can run without a
// registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's collectors.
type Metrics struct {
	opsIntegrated  *prometheus.CounterVec
	effects        *prometheus.CounterVec
	duplicates     prometheus.Counter
	pending        *prometheus.GaugeVec
	poisoned       prometheus.Counter
	importDuration prometheus.Histogram
}

// New registers the collectors with reg. Registering twice on the same
// registry panics, like promauto.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		opsIntegrated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_ops_integrated_total",
			Help: "Operations integrated into a container, by op kind",
		}, []string{"kind"}),
		effects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_effects_total",
			Help: "Effects delivered to the sink, by effect kind",
		}, []string{"kind"}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "weft_duplicate_ops_total",
			Help: "Operations skipped because they were already integrated",
		}),
		pending: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "weft_pending_ops",
			Help: "Operations parked until their dependencies arrive",
		}, []string{"container"}),
		poisoned: f.NewCounter(prometheus.CounterOpts{
			Name: "weft_poisoned_containers_total",
			Help: "Containers disabled by an invariant violation",
		}),
		importDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "weft_import_duration_seconds",
			Help:    "Duration of one import event, pending retries included",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.25},
		}),
	}
}

// OpIntegrated counts one integrated op of the given kind.
func (m *Metrics) OpIntegrated(kind string) {
	if m == nil {
		return
	}
	m.opsIntegrated.WithLabelValues(kind).Inc()
}

// Effect counts one delivered effect.
func (m *Metrics) Effect(kind string) {
	if m == nil {
		return
	}
	m.effects.WithLabelValues(kind).Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// SetPending records the pending buffer size of a container.
func (m *Metrics) SetPending(container string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(container).Set(float64(n))
}

func (m *Metrics) Poisoned() {
	if m == nil {
		return
	}
	m.poisoned.Inc()
}

// ObserveImport records the time since start.
func (m *Metrics) ObserveImport(start time.Time) {
	if m == nil {
		return
	}
	m.importDuration.Observe(time.Since(start).Seconds())
}
