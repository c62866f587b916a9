package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	indexValue prometheus.Gauge
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// EngineMetrics returns the lazily-initialised registry recording vault and
// rewards engine activity.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tenantvault",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total engine operations segmented by module, operation, and outcome.",
			}, []string{"module", "operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tenantvault",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
			indexValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tenantvault",
				Subsystem: "engine",
				Name:      "global_index",
				Help:      "Current global deposit index scaled to float precision.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.latency,
			engineRegistry.indexValue,
		)
	})
	return engineRegistry
}

// Observe records the outcome and duration of one engine operation.
func (m *engineMetrics) Observe(module, operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(module, operation, outcome).Inc()
	m.latency.WithLabelValues(module, operation).Observe(duration.Seconds())
}

// SetGlobalIndex publishes the current global deposit index. Precision loss
// in the float conversion is acceptable for dashboards.
func (m *engineMetrics) SetGlobalIndex(index float64) {
	if m == nil {
		return
	}
	m.indexValue.Set(index)
}
