package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-metrics/internal/model"
)

func TestNewMetrics_Registers(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetRunCompanies(3)
	m.CompanyFailed("fetch")
	m.ObserveFetch("companyfacts", 200, time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"edgar_fetch_total",
		"edgar_fetch_duration_seconds",
		"edgar_company_failures_total",
		"edgar_run_companies",
	}, names)

	assert.Panics(t, func() { NewMetrics(reg) }, "duplicate registration")
}

func TestObserveFetch_Labels(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveFetch("companyfacts", 200, 100*time.Millisecond)
	m.ObserveFetch("companyfacts", 200, 100*time.Millisecond)
	m.ObserveFetch("companyfacts", 429, time.Second)
	m.ObserveFetch("submissions", 0, time.Second)
	m.ObserveFetch("submissions", -1, 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.FetchTotal.WithLabelValues("companyfacts", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchTotal.WithLabelValues("companyfacts", "429")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchTotal.WithLabelValues("submissions", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchTotal.WithLabelValues("submissions", "cache")), 0)
	// cache hits are not timed
	assert.Equal(t, 2, testutil.CollectAndCount(m.FetchDuration))
}

func TestObserveResult(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveResult(model.CompanyResult{Metrics: []model.ResolvedMetric{
		{Metric: "Revenue", Source: model.SourceAnnual, Confidence: 0.95},
		{Metric: "ROE", Source: model.SourceDerived, Derived: true, Confidence: 0.9},
		model.NoMatch("EPSDiluted", "no candidate matched"),
	}})

	assert.InDelta(t, 1, testutil.ToFloat64(m.Resolutions.WithLabelValues("Revenue", "annual")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Resolutions.WithLabelValues("EPSDiluted", "none")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.Confidence))
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch("tickers", 200, time.Second)
		m.ObserveResult(model.CompanyResult{})
		m.CompanyFailed("evaluate")
		m.SetRunCompanies(1)
	})
}
