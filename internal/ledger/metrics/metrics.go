package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the ledger module.
// Tracks recorded purchases, critical path durations and cache behaviour.
type Metrics struct {
	PurchasesRecorded   prometheus.Counter
	RecordDuration      prometheus.Histogram
	TopCategoryDuration prometheus.Histogram
	RenderDuration      prometheus.Histogram
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	CacheErrors         prometheus.Counter
	CacheCircuitState   prometheus.Gauge
}

// New creates a new Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PurchasesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "backpack_purchases_recorded_total",
			Help: "Total number of purchases appended to any backpack",
		}),
		RecordDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "backpack_record_purchase_duration_seconds",
			Help:    "Duration of RecordPurchase operations (gate, append and score update)",
			Buckets: durationBuckets,
		}),
		TopCategoryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "backpack_top_category_duration_seconds",
			Help:    "Duration of TopCategory resolution",
			Buckets: durationBuckets,
		}),
		RenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "backpack_render_duration_seconds",
			Help:    "Duration of metadata rendering",
			Buckets: durationBuckets,
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "backpack_top_category_cache_hits_total",
			Help: "Top-category lookups answered from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "backpack_top_category_cache_misses_total",
			Help: "Top-category lookups that had to be recomputed",
		}),
		CacheErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "backpack_top_category_cache_errors_total",
			Help: "Cache backend failures (treated as misses)",
		}),
		CacheCircuitState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "backpack_top_category_cache_circuit_state",
			Help: "Cache circuit breaker state (0=closed/healthy, 1=open/bypassed)",
		}),
	}
}

// IncrementPurchasesRecorded records a successful append.
func (m *Metrics) IncrementPurchasesRecorded() {
	if m == nil {
		return
	}
	m.PurchasesRecorded.Inc()
}

// ObserveRecordPurchase records the duration of a RecordPurchase call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRecordPurchase(start time.Time) {
	if m == nil {
		return
	}
	m.RecordDuration.Observe(time.Since(start).Seconds())
}

// ObserveTopCategory records the duration of a TopCategory call.
func (m *Metrics) ObserveTopCategory(start time.Time) {
	if m == nil {
		return
	}
	m.TopCategoryDuration.Observe(time.Since(start).Seconds())
}

// ObserveRender records the duration of a Render call.
func (m *Metrics) ObserveRender(start time.Time) {
	if m == nil {
		return
	}
	m.RenderDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) IncCacheError() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}

// SetCacheCircuitOpen sets the circuit breaker state gauge.
func (m *Metrics) SetCacheCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CacheCircuitState.Set(1)
	} else {
		m.CacheCircuitState.Set(0)
	}
}
