package edgar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-metrics/internal/cache"
	"github.com/sells-group/edgar-metrics/internal/config"
	"github.com/sells-group/edgar-metrics/internal/fetcher"
	"github.com/sells-group/edgar-metrics/internal/monitoring"
)

const factsJSON = `{
  "cik": 320193,
  "entityName": "Apple Inc.",
  "facts": {
    "us-gaap": {
      "Revenues": {
        "label": "Revenues",
        "units": {
          "USD": [
            {"start": "2023-10-01", "end": "2024-09-28", "val": 391035000000, "accn": "0000320193-24-000123", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2024-11-01"}
          ]
        }
      }
    }
  }
}`

const submissionsJSON = `{"cik":"320193","name":"Apple Inc.","tickers":["AAPL"],"sic":"3571","sicDescription":"Electronic Computers","fiscalYearEnd":"0928"}`

const tickersJSON = `{
  "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
  "1": {"cik_str": 1067983, "ticker": "BRK-B", "title": "BERKSHIRE HATHAWAY INC"},
  "2": {"cik_str": 789019, "ticker": "MSFT", "title": "MICROSOFT CORP"}
}`

type edgarServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newEdgarServer(t *testing.T) *edgarServer {
	t.Helper()
	s := &edgarServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/xbrl/companyfacts/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		_, _ = w.Write([]byte(factsJSON))
	})
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		_, _ = w.Write([]byte(submissionsJSON))
	})
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tickersJSON))
	})
	mux.HandleFunc("/wiki/sp500", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(constituentsHTML))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestClient(t *testing.T, srv *edgarServer, m *monitoring.Metrics) *Client {
	t.Helper()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: "Example Research research@example.com",
		Backoff:   func(int, error) time.Duration { return 0 },
	})
	dir := t.TempDir()
	return New(f, Options{
		BaseURL:         srv.URL + "/",
		TickersURL:      srv.URL + "/files/company_tickers.json",
		ConstituentsURL: srv.URL + "/wiki/sp500",
		Facts:           cache.New(dir, cache.FactsPrefix),
		Submissions:     cache.New(dir, cache.SubmissionsPrefix),
		Metrics:         m,
	})
}

func TestCompanyFacts_FetchesThenServesFromCache(t *testing.T) {
	t.Parallel()

	srv := newEdgarServer(t)
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	c := newTestClient(t, srv, m)

	facts, err := c.CompanyFacts(context.Background(), "320193")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", facts.EntityName)
	assert.Equal(t, int32(1), srv.hits.Load())

	facts, err = c.CompanyFacts(context.Background(), "0000320193")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", facts.EntityName)
	assert.Equal(t, int32(1), srv.hits.Load(), "second call is a cache hit")

	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchTotal.WithLabelValues(EndpointCompanyFacts, "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchTotal.WithLabelValues(EndpointCompanyFacts, "cache")), 0)
}

func TestSubmissions(t *testing.T) {
	t.Parallel()

	srv := newEdgarServer(t)
	c := newTestClient(t, srv, nil)

	subs, err := c.Submissions(context.Background(), "320193")
	require.NoError(t, err)
	assert.Equal(t, "Electronic Computers", subs.SICDescription)
	assert.Equal(t, "0928", subs.FiscalYearEnd.String())
	assert.Equal(t, []string{"AAPL"}, subs.Tickers)
}

func TestCompanyFacts_NotFound(t *testing.T) {
	t.Parallel()

	srv := newEdgarServer(t)
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	c := newTestClient(t, srv, m)

	_, err := c.CompanyFacts(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CIK0000000001")
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchTotal.WithLabelValues(EndpointCompanyFacts, "404")), 0)
}

func TestURLs(t *testing.T) {
	t.Parallel()

	c := New(nil, Options{})
	assert.Equal(t, "https://data.sec.gov/api/xbrl/companyfacts/CIK0000320193.json", c.CompanyFactsURL("320193"))
	assert.Equal(t, "https://data.sec.gov/submissions/CIK0000320193.json", c.SubmissionsURL("CIK320193"))
}

func TestNewFromConfig_RequiresUserAgent(t *testing.T) {
	t.Parallel()

	_, err := NewFromConfig(config.SECConfig{UserAgent: "  "}, config.CacheConfig{}, nil)
	assert.ErrorIs(t, err, ErrMissingUserAgent)

	c, err := NewFromConfig(config.SECConfig{
		UserAgent:    "Example Research research@example.com",
		RatePerSec:   10,
		FactsBaseURL: "https://data.sec.gov",
	}, config.CacheConfig{Dir: t.TempDir(), SubsDir: t.TempDir(), Force: true}, nil)
	require.NoError(t, err)
	assert.True(t, c.opts.Facts.Force)
	assert.True(t, c.opts.Submissions.Force)
}

func TestTickers(t *testing.T) {
	t.Parallel()

	srv := newEdgarServer(t)
	c := newTestClient(t, srv, nil)

	m, err := c.Tickers(context.Background())
	require.NoError(t, err)
	require.Len(t, m, 3)

	brk, ok := m.Lookup("brk.b")
	require.True(t, ok)
	assert.Equal(t, Ticker{Ticker: "BRK-B", CIK: "0001067983", Title: "BERKSHIRE HATHAWAY INC"}, brk)

	var symbols []string
	for _, tk := range m.Sorted() {
		symbols = append(symbols, tk.Ticker)
	}
	assert.Equal(t, []string{"AAPL", "BRK-B", "MSFT"}, symbols)
}

func TestParseTickers_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseTickers([]byte(`[`))
	assert.Error(t, err)
	_, err = ParseTickers([]byte(`{}`))
	assert.Error(t, err)
}

func TestNormalizeTicker(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"BRK.B", "brk-b", " BRK B "} {
		assert.Equal(t, "BRKB", NormalizeTicker(in), in)
	}
	assert.True(t, strings.EqualFold("AAPL", NormalizeTicker("aapl")))
}
