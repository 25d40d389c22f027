package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	start := time.Now()
	m.ObserveAdapter("vat", OutcomeOK, start)
	m.ObserveAdapter("vat", OutcomeOK, start)
	m.ObserveAdapter("llm", OutcomeTimeout, start)
	m.ObserveRow("ENRICHED", start)
	m.CacheLookup(CacheHit)
	m.ChangeApplied("company_name")
	m.LLMUsage("anthropic", "claude-haiku-4-5-20251001", 1000, 200, 0.0016)
	m.SetBreaker("registry", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AdapterCalls.WithLabelValues("vat", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterCalls.WithLabelValues("llm", OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsProcessed.WithLabelValues("ENRICHED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesApplied.WithLabelValues("company_name")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.LLMTokens.WithLabelValues("anthropic", "input")))
	assert.InDelta(t, 0.0016, testutil.ToFloat64(m.LLMCostUSD.WithLabelValues("anthropic", "claude-haiku-4-5-20251001")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("registry")))
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveAdapter("vat", OutcomeOK, time.Now())
		m.ObserveRow("ERROR", time.Now())
		m.CacheLookup(CacheMiss)
		m.ChangeApplied("city")
		m.LLMUsage("gemini", "gemini-2.5-flash", 1, 1, 0)
		m.SetBreaker("vat", 0)
	})
}

func TestDefault_Singleton(t *testing.T) {
	t.Parallel()
	assert.Same(t, Default(), Default())
}
