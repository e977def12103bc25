package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for event publishing. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Emitted         prometheus.Counter
	PersistFailures prometheus.Counter
	Dropped         prometheus.Counter
}

// NewMetrics registers the event metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "backpack_events_emitted_total",
			Help: "Total number of events handed to the event sink",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "backpack_events_persist_failures_total",
			Help: "Total number of events the sink failed to accept",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "backpack_events_dropped_total",
			Help: "Total number of events dropped because the async buffer was full",
		}),
	}
}

func (m *Metrics) IncEmitted() {
	if m == nil {
		return
	}
	m.Emitted.Inc()
}

func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}
