package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the cross-cutting counters every service reports into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PermissionDenials    *prometheus.CounterVec
	EventPublishFailures *prometheus.CounterVec
}

// New creates and registers the shared metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PermissionDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backpack_permission_denials_total",
			Help: "Total number of calls rejected for lack of authorization",
		}, []string{"operation"}),
		EventPublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backpack_event_publish_failures_total",
			Help: "Total number of events that could not be published after a successful mutation",
		}, []string{"event_type"}),
	}
}

// IncPermissionDenied counts a rejected call to operation.
func (m *Metrics) IncPermissionDenied(operation string) {
	if m == nil {
		return
	}
	m.PermissionDenials.WithLabelValues(operation).Inc()
}

// IncEventPublishFailure counts an event that was not published.
func (m *Metrics) IncEventPublishFailure(eventType string) {
	if m == nil {
		return
	}
	m.EventPublishFailures.WithLabelValues(eventType).Inc()
}
