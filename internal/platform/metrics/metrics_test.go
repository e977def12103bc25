package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsByLabel(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncPermissionDenied("set_agent")
	m.IncPermissionDenied("set_agent")
	m.IncPermissionDenied("record_purchase")
	m.IncEventPublishFailure("agent_set")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PermissionDenials.WithLabelValues("set_agent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PermissionDenials.WithLabelValues("record_purchase")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventPublishFailures.WithLabelValues("agent_set")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncPermissionDenied("set_agent")
		m.IncEventPublishFailure("agent_set")
	})
}
