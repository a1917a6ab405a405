// Package edgar is the SEC EDGAR client: companyfacts and submissions
// documents (served from the dated disk cache when fresh), the ticker map
// and the S&P 500 constituent list.
package edgar

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/cache"
	"github.com/sells-group/edgar-metrics/internal/config"
	"github.com/sells-group/edgar-metrics/internal/fetcher"
	"github.com/sells-group/edgar-metrics/internal/monitoring"
	"github.com/sells-group/edgar-metrics/internal/resilience"
	"github.com/sells-group/edgar-metrics/internal/xbrl"
)

// ErrMissingUserAgent is returned when no SEC User-Agent is configured. The
// SEC rejects anonymous clients, so a run cannot start without one.
var ErrMissingUserAgent = eris.New("edgar: SEC user agent is required (set SEC_USER_AGENT)")

// Endpoint labels used for monitoring.
const (
	EndpointCompanyFacts = "companyfacts"
	EndpointSubmissions  = "submissions"
	EndpointTickers      = "tickers"
	EndpointSP500        = "sp500"
)

// Options configures a Client.
type Options struct {
	BaseURL         string
	TickersURL      string
	ConstituentsURL string
	// Facts and Submissions are optional snapshot caches.
	Facts       *cache.Cache
	Submissions *cache.Cache
	Metrics     *monitoring.Metrics
}

// Client fetches EDGAR documents through a shared Fetcher.
type Client struct {
	f    fetcher.Fetcher
	opts Options
}

// New creates a client over f.
func New(f fetcher.Fetcher, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://data.sec.gov"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.TickersURL == "" {
		opts.TickersURL = "https://www.sec.gov/files/company_tickers.json"
	}
	if opts.ConstituentsURL == "" {
		opts.ConstituentsURL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"
	}
	return &Client{f: f, opts: opts}
}

// NewFromConfig builds the rate-limited fetcher and caches from
// configuration. It fails with ErrMissingUserAgent when no agent is set.
func NewFromConfig(sec config.SECConfig, cc config.CacheConfig, m *monitoring.Metrics) (*Client, error) {
	if strings.TrimSpace(sec.UserAgent) == "" {
		return nil, ErrMissingUserAgent
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  sec.UserAgent,
		Timeout:    time.Duration(sec.TimeoutSecs) * time.Second,
		MaxRetries: sec.MaxRetries,
		RatePerSec: sec.RatePerSec,
	})

	facts := cache.New(cc.Dir, cache.FactsPrefix)
	facts.Force = cc.Force
	subs := cache.New(cc.SubsDir, cache.SubmissionsPrefix)
	subs.Force = cc.Force

	return New(f, Options{
		BaseURL:         sec.FactsBaseURL,
		TickersURL:      sec.TickersURL,
		ConstituentsURL: sec.ConstituentURL,
		Facts:           facts,
		Submissions:     subs,
		Metrics:         m,
	}), nil
}

// get fetches url and records the outcome under endpoint.
func (c *Client) get(ctx context.Context, endpoint, url string) ([]byte, error) {
	start := time.Now()
	body, err := c.f.Get(ctx, url)
	status := 200
	if err != nil {
		status = resilience.StatusCode(err)
	}
	c.opts.Metrics.ObserveFetch(endpoint, status, time.Since(start))
	return body, err
}

// cached serves cik's document from store when fresh, otherwise fetches it
// and saves a new snapshot.
func (c *Client) cached(ctx context.Context, store *cache.Cache, endpoint, cik, url string) ([]byte, error) {
	log := zap.L().With(zap.String("cik", cik), zap.String("endpoint", endpoint))

	if store != nil {
		data, err := store.Load(cik)
		if err == nil {
			c.opts.Metrics.ObserveFetch(endpoint, -1, 0)
			log.Debug("edgar: cache hit")
			return data, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn("edgar: cache read failed, fetching", zap.Error(err))
		}
	}

	data, err := c.get(ctx, endpoint, url)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: %s for CIK%s", endpoint, cik)
	}

	if store != nil {
		if _, err := store.Save(cik, data); err != nil {
			log.Warn("edgar: cache write failed", zap.Error(err))
		}
	}
	return data, nil
}

// CompanyFactsURL returns the companyfacts URL for cik.
func (c *Client) CompanyFactsURL(cik string) string {
	return c.opts.BaseURL + "/api/xbrl/companyfacts/CIK" + xbrl.PadCIK(cik) + ".json"
}

// SubmissionsURL returns the submissions URL for cik.
func (c *Client) SubmissionsURL(cik string) string {
	return c.opts.BaseURL + "/submissions/CIK" + xbrl.PadCIK(cik) + ".json"
}

// CompanyFacts returns the parsed companyfacts document for cik.
func (c *Client) CompanyFacts(ctx context.Context, cik string) (*xbrl.CompanyFacts, error) {
	cik = xbrl.PadCIK(cik)
	data, err := c.cached(ctx, c.opts.Facts, EndpointCompanyFacts, cik, c.CompanyFactsURL(cik))
	if err != nil {
		return nil, err
	}
	facts, err := xbrl.ParseCompanyFacts(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: companyfacts for CIK%s", cik)
	}
	return facts, nil
}

// Submissions returns the parsed submissions document for cik.
func (c *Client) Submissions(ctx context.Context, cik string) (*xbrl.Submissions, error) {
	cik = xbrl.PadCIK(cik)
	data, err := c.cached(ctx, c.opts.Submissions, EndpointSubmissions, cik, c.SubmissionsURL(cik))
	if err != nil {
		return nil, err
	}
	subs, err := xbrl.ParseSubmissions(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: submissions for CIK%s", cik)
	}
	return subs, nil
}
