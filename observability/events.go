package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tenantvault/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured engine events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tenantvault",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of engine events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Record increments the counter for the supplied event type.
func (m *eventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
}

// MetricsEmitter forwards engine events into the prometheus event registry.
// It satisfies events.Emitter so engines stay unaware of the metrics stack.
type MetricsEmitter struct {
	Next events.Emitter
}

// Emit records the event and forwards it to the wrapped emitter when one is
// configured.
func (m MetricsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Events().Record(evt.EventType())
	if m.Next != nil {
		m.Next.Emit(evt)
	}
}
