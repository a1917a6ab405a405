// Package monitoring exposes Prometheus instruments for fetches, metric
// resolutions and run progress, and summarizes recent runs from the store.
package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/edgar-metrics/internal/model"
)

// Metrics holds the run instruments. The zero value is not usable; a nil
// *Metrics is, and records nothing.
type Metrics struct {
	FetchTotal      *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	Resolutions     *prometheus.CounterVec
	Confidence      *prometheus.HistogramVec
	CompanyFailures *prometheus.CounterVec
	RunCompanies    prometheus.Gauge
}

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgar_fetch_total",
				Help: "EDGAR documents requested, by endpoint and outcome",
			},
			[]string{"endpoint", "status"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgar_fetch_duration_seconds",
				Help:    "EDGAR request duration including retries",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgar_metric_resolutions_total",
				Help: "Metric resolutions by metric and source kind",
			},
			[]string{"metric", "source"},
		),
		Confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgar_confidence",
				Help:    "Confidence of resolved metrics",
				Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
			},
			[]string{"metric_kind"},
		),
		CompanyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgar_company_failures_total",
				Help: "Companies dropped from a run, by stage",
			},
			[]string{"stage"},
		),
		RunCompanies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "edgar_run_companies",
				Help: "Companies evaluated by the most recent run",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.FetchTotal, m.FetchDuration, m.Resolutions, m.Confidence, m.CompanyFailures, m.RunCompanies)
	}
	return m
}

// ObserveFetch records one EDGAR request. status is the HTTP status, 0 for
// network failures, or -1 for a cache hit.
func (m *Metrics) ObserveFetch(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	switch status {
	case 0:
		label = "error"
	case -1:
		label = "cache"
	}
	m.FetchTotal.WithLabelValues(endpoint, label).Inc()
	if status != -1 {
		m.FetchDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}

// ObserveResult records every metric of a company result.
func (m *Metrics) ObserveResult(res model.CompanyResult) {
	if m == nil {
		return
	}
	for _, rm := range res.Metrics {
		m.Resolutions.WithLabelValues(rm.Metric, string(rm.Source)).Inc()
		if !rm.Found() {
			continue
		}
		kind := "base"
		if rm.Derived {
			kind = "derived"
		}
		m.Confidence.WithLabelValues(kind).Observe(rm.Confidence)
	}
}

// CompanyFailed records a dropped company.
func (m *Metrics) CompanyFailed(stage string) {
	if m == nil {
		return
	}
	m.CompanyFailures.WithLabelValues(stage).Inc()
}

// SetRunCompanies records the number of companies evaluated by a run.
func (m *Metrics) SetRunCompanies(n int) {
	if m == nil {
		return
	}
	m.RunCompanies.Set(float64(n))
}
