// Package metrics exposes Prometheus counters and histograms for the
// reconciliation engine. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Adapter call outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeOpen    = "circuit_open"
	OutcomePanic   = "panic"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheSkip  = "skip"
	CacheError = "error"
)

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30}

// Metrics holds the engine's collectors.
type Metrics struct {
	AdapterCalls    *prometheus.CounterVec
	AdapterDuration *prometheus.HistogramVec
	RowsProcessed   *prometheus.CounterVec
	RowDuration     prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
	ChangesApplied  *prometheus.CounterVec
	LLMTokens       *prometheus.CounterVec
	LLMCostUSD      *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AdapterCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datafixer_adapter_calls_total",
			Help: "Enrichment source calls by source and outcome",
		}, []string{"source", "outcome"}),
		AdapterDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datafixer_adapter_duration_seconds",
			Help:    "Duration of enrichment source calls",
			Buckets: latencyBuckets,
		}, []string{"source"}),
		RowsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datafixer_rows_processed_total",
			Help: "Rows processed by final status",
		}, []string{"status"}),
		RowDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "datafixer_row_duration_seconds",
			Help:    "End-to-end duration of one row",
			Buckets: latencyBuckets,
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datafixer_cache_lookups_total",
			Help: "Entity cache lookups by result",
		}, []string{"result"}),
		ChangesApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datafixer_changes_applied_total",
			Help: "Field changes written to records by field",
		}, []string{"field"}),
		LLMTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datafixer_llm_tokens_total",
			Help: "Language model tokens by provider and direction",
		}, []string{"provider", "direction"}),
		LLMCostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Name: "datafixer_llm_cost_usd_total",
			Help: "Estimated language model spend in USD",
		}, []string{"provider", "model"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datafixer_breaker_state",
			Help: "Circuit breaker state per source (0 closed, 1 open, 2 half-open)",
		}, []string{"source"}),
	}
}

var defaultOnce = sync.OnceValue(func() *Metrics {
	return New(prometheus.DefaultRegisterer)
})

// Default returns the process-wide metrics registered with the default
// Prometheus registry.
func Default() *Metrics {
	return defaultOnce()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAdapter records one adapter call.
func (m *Metrics) ObserveAdapter(source, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.AdapterCalls.WithLabelValues(source, outcome).Inc()
	m.AdapterDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

// ObserveRow records a finished row.
func (m *Metrics) ObserveRow(status string, start time.Time) {
	if m == nil {
		return
	}
	m.RowsProcessed.WithLabelValues(status).Inc()
	m.RowDuration.Observe(time.Since(start).Seconds())
}

// CacheLookup records an entity cache lookup.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ChangeApplied records a value written to field.
func (m *Metrics) ChangeApplied(field string) {
	if m == nil {
		return
	}
	m.ChangesApplied.WithLabelValues(field).Inc()
}

// LLMUsage records tokens and estimated spend of one completion.
func (m *Metrics) LLMUsage(provider, model string, in, out int64, usd float64) {
	if m == nil {
		return
	}
	m.LLMTokens.WithLabelValues(provider, "input").Add(float64(in))
	m.LLMTokens.WithLabelValues(provider, "output").Add(float64(out))
	m.LLMCostUSD.WithLabelValues(provider, model).Add(usd)
}

// SetBreaker records the state of a source's circuit breaker.
func (m *Metrics) SetBreaker(source string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(source).Set(float64(state))
}
