package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/engine"
	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/monitoring"
	"github.com/sells-group/edgar-metrics/internal/resilience"
	"github.com/sells-group/edgar-metrics/internal/store"
	"github.com/sells-group/edgar-metrics/internal/xbrl"
)

// factsDoc renders a minimal companyfacts document with FY2024 revenue and
// net income for a calendar-year filer.
func factsDoc(cik int, name string, revenue, netIncome float64) string {
	return fmt.Sprintf(`{
  "cik": %d,
  "entityName": %q,
  "facts": {
    "us-gaap": {
      "Revenues": {"label": "Revenues", "units": {"USD": [
        {"start": "2024-01-01", "end": "2024-12-31", "val": %g, "accn": "a-1", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2025-02-01"}
      ]}},
      "NetIncomeLoss": {"label": "Net income", "units": {"USD": [
        {"start": "2024-01-01", "end": "2024-12-31", "val": %g, "accn": "a-1", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2025-02-01"}
      ]}}
    }
  }
}`, cik, name, revenue, netIncome)
}

func subsDoc(cik int, ticker string) string {
	return fmt.Sprintf(`{"cik":"%d","name":"Filer %d","tickers":[%q],"sic":"7372","sicDescription":"Services-Prepackaged Software","fiscalYearEnd":"1231"}`, cik, cik, ticker)
}

type fakeSource struct {
	mu       sync.Mutex
	facts    map[string]string
	subs     map[string]string
	factErr  map[string]error
	panicCIK string
	onFacts  func()
	calls    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		facts:   make(map[string]string),
		subs:    make(map[string]string),
		factErr: make(map[string]error),
	}
}

func (f *fakeSource) add(cik int, ticker string, revenue, netIncome float64) {
	key := xbrl.PadCIK(fmt.Sprint(cik))
	f.facts[key] = factsDoc(cik, "Filer "+ticker, revenue, netIncome)
	f.subs[key] = subsDoc(cik, ticker)
}

func (f *fakeSource) CompanyFacts(_ context.Context, cik string) (*xbrl.CompanyFacts, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.onFacts != nil {
		f.onFacts()
	}
	if cik == f.panicCIK {
		panic("corrupt document")
	}
	if err, ok := f.factErr[cik]; ok {
		return nil, err
	}
	doc, ok := f.facts[cik]
	if !ok {
		return nil, &resilience.StatusError{URL: "companyfacts/" + cik, StatusCode: 404}
	}
	return xbrl.ParseCompanyFacts(strings.NewReader(doc))
}

func (f *fakeSource) Submissions(_ context.Context, cik string) (*xbrl.Submissions, error) {
	doc, ok := f.subs[cik]
	if !ok {
		return nil, &resilience.StatusError{URL: "submissions/" + cik, StatusCode: 404}
	}
	return xbrl.ParseSubmissions(strings.NewReader(doc))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestPipeline(src Source, st store.Store, m *monitoring.Metrics) *Pipeline {
	eng := engine.New(catalog.Default(), engine.DefaultConfig(2024))
	return New(src, eng, st, m, Options{Workers: 4})
}

func cikTargets(ciks ...int) []Target {
	out := make([]Target, len(ciks))
	for i, c := range ciks {
		out[i] = Target{CIK: xbrl.PadCIK(fmt.Sprint(c))}
	}
	return out
}

func TestRun_EvaluatesAndAggregates(t *testing.T) {
	src := newFakeSource()
	src.add(789019, "MSFT", 245e9, 88e9)
	src.add(320193, "AAPL", 391e9, 94e9)
	src.add(1652044, "GOOGL", 350e9, 100e9)
	st := newTestStore(t)

	res, err := newTestPipeline(src, st, nil).Run(context.Background(), cikTargets(789019, 320193, 1652044))
	require.NoError(t, err)

	require.Len(t, res.Results, 3)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "0000320193", res.Results[0].Company.CIK, "results sorted by CIK")
	assert.Equal(t, "0000789019", res.Results[1].Company.CIK)
	assert.Equal(t, "0001652044", res.Results[2].Company.CIK)
	assert.Equal(t, "AAPL", res.Results[0].Company.Symbol)
	assert.Equal(t, "Information Technology", res.Results[0].Company.Sector)

	rev, ok := res.Results[0].Metric(catalog.Revenue)
	require.True(t, ok)
	assert.InDelta(t, 391e9, rev.Value, 1)

	var global *model.BenchmarkRecord
	for i, b := range res.Benchmarks {
		if b.Metric == catalog.NetProfitMargin && b.Global() {
			global = &res.Benchmarks[i]
		}
	}
	require.NotNil(t, global)
	assert.Equal(t, 3, global.SampleSize)
	assert.NotEmpty(t, res.Rankings)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 3, run.Result.Companies)
	assert.Equal(t, len(res.Benchmarks), run.Result.Benchmarks)

	stored, err := st.CompanyMetrics(context.Background(), "0000320193", 2024)
	require.NoError(t, err)
	assert.Len(t, stored, len(res.Results[0].Metrics))

	bench, err := st.ListBenchmarks(context.Background(), store.BenchmarkFilter{FY: 2024, Metric: catalog.NetProfitMargin})
	require.NoError(t, err)
	assert.NotEmpty(t, bench)
}

func TestRun_FailureIsolation(t *testing.T) {
	src := newFakeSource()
	src.add(320193, "AAPL", 391e9, 94e9)
	src.add(789019, "MSFT", 245e9, 88e9)
	src.factErr["0000789019"] = resilience.NewTransientError(fmt.Errorf("GET: 503"), 503)
	src.panicCIK = "0001652044"
	delete(src.subs, "0000320193")
	src.add(1018724, "AMZN", 638e9, 59e9)

	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)

	res, err := newTestPipeline(src, nil, m).Run(context.Background(), cikTargets(320193, 789019, 1652044, 1018724, 999))
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	assert.Equal(t, "0001018724", res.Results[0].Company.CIK)

	require.Len(t, res.Failures, 4)
	byCIK := make(map[string]model.CompanyFailure)
	for _, f := range res.Failures {
		byCIK[f.CIK] = f
	}
	assert.Equal(t, StageSubmissions, byCIK["0000320193"].Stage)
	assert.Equal(t, StageFacts, byCIK["0000789019"].Stage)
	assert.Equal(t, "transient", byCIK["0000789019"].ErrorType)
	assert.Equal(t, StageFacts, byCIK["0001652044"].Stage)
	assert.Contains(t, byCIK["0001652044"].Error, "panic: corrupt document")
	assert.Equal(t, "permanent", byCIK["0000000999"].ErrorType)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.CompanyFailures.WithLabelValues(StageFacts)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CompanyFailures.WithLabelValues(StageSubmissions)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunCompanies))

	// One company cannot form a peer group.
	assert.Empty(t, res.Benchmarks)
}

func TestRun_LocalFactsWithoutSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CIK0000320193.json")
	require.NoError(t, os.WriteFile(path, []byte(factsDoc(320193, "Apple Inc.", 391e9, 94e9)), 0o644))

	res, err := newTestPipeline(nil, nil, nil).Run(context.Background(), []Target{{FactsPath: path}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	c := res.Results[0].Company
	assert.Equal(t, "0000320193", c.CIK)
	assert.Equal(t, "Apple Inc.", c.Name)
	assert.Equal(t, "Unknown", c.Sector)
	assert.Empty(t, res.RunID)
}

func TestRun_LocalFactsToleratesMissingSubmissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facts.json")
	require.NoError(t, os.WriteFile(path, []byte(factsDoc(320193, "Apple Inc.", 391e9, 94e9)), 0o644))

	res, err := newTestPipeline(newFakeSource(), nil, nil).Run(context.Background(), []Target{{FactsPath: path}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Empty(t, res.Failures)
}

func TestRun_LocalFactsUnreadable(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	res, err := newTestPipeline(nil, nil, nil).Run(context.Background(), []Target{
		{FactsPath: bad},
		{FactsPath: filepath.Join(dir, "missing.json")},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, bad, res.Failures[0].CIK)
}

func TestRun_CancelledMarksRunFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource()
	src.add(320193, "AAPL", 391e9, 94e9)
	src.onFacts = cancel
	st := newTestStore(t)

	_, err := newTestPipeline(src, st, nil).Run(ctx, cikTargets(320193))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Result)
	assert.Contains(t, runs[0].Result.Error, "context canceled")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(newFakeSource(), newTestStore(t), nil).Run(ctx, cikTargets(320193))
	require.Error(t, err)
}

func TestRun_NoTargets(t *testing.T) {
	st := newTestStore(t)
	res, err := newTestPipeline(newFakeSource(), st, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Benchmarks)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
}

func TestResult_SummaryAndBundle(t *testing.T) {
	res := &Result{
		FY: 2024,
		Results: []model.CompanyResult{{
			Company: model.CompanyContext{CIK: "0000320193"},
			Metrics: []model.ResolvedMetric{
				{Metric: "Revenue", Value: 1, Source: model.SourceAnnual},
				model.NoMatch("CFO", "no candidate matched"),
			},
		}},
		Failures: []model.CompanyFailure{{CIK: "0000789019", Stage: StageFacts}},
	}

	sum := res.Summary()
	assert.Equal(t, 1, sum.Companies)
	assert.Equal(t, 1, sum.Metrics)
	assert.Len(t, sum.Failures, 1)

	b := res.Bundle()
	assert.Equal(t, 2024, b.FY)
	require.Len(t, b.Companies, 1)
	assert.Equal(t, "0000320193", b.Companies[0].CIK)
}
