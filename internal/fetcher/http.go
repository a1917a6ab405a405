package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/edgar-metrics/internal/resilience"
)

// SECMaxRate is the fair-access ceiling published by the SEC.
const SECMaxRate = 10

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RatePerSec is the shared request budget across every host and worker.
	// It is capped at SECMaxRate.
	RatePerSec float64
	// Backoff overrides resilience.ThrottleBackoff.
	Backoff  func(attempt int, err error) time.Duration
	Breakers *resilience.HostBreakers
}

// AdaptiveLimiter wraps a rate.Limiter whose rate never exceeds its initial
// value. A 429 halves the rate (down to initial/4); each success recovers
// 20% of it.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at its ceiling.
func NewAdaptiveLimiter(ceiling rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(ceiling, burst),
		maxRate:     ceiling,
		minRate:     ceiling / 4,
		currentRate: ceiling,
	}
}

// Wait blocks until the limiter allows a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess recovers 20% of the rate, up to the ceiling.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate >= a.maxRate {
		return
	}
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("fetcher: reducing request rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher with one shared limiter, retries and a
// circuit breaker per host.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiter  *AdaptiveLimiter
	breakers *resilience.HostBreakers
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "edgar-metrics/1.0"
	}
	if opts.RatePerSec <= 0 || opts.RatePerSec > SECMaxRate {
		opts.RatePerSec = SECMaxRate
	}
	if opts.Backoff == nil {
		opts.Backoff = resilience.ThrottleBackoff
	}
	breakers := opts.Breakers
	if breakers == nil {
		breakers = resilience.NewHostBreakers(resilience.DefaultBreakerConfig())
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiter:  NewAdaptiveLimiter(rate.Limit(opts.RatePerSec), 1),
		breakers: breakers,
	}
}

// Limiter exposes the shared limiter.
func (f *HTTPFetcher) Limiter() *AdaptiveLimiter {
	return f.limiter
}

func (f *HTTPFetcher) retryConfig(u *url.URL) resilience.RetryConfig {
	cfg := resilience.EDGARRetryConfig(f.opts.MaxRetries)
	cfg.Backoff = f.opts.Backoff
	cfg.OnRetry = resilience.RetryLogger(u.Host, u.Path)
	return cfg
}

// do performs one rate-limited attempt. Only a 200 response is returned;
// everything else is classified as transient or permanent.
func (f *HTTPFetcher) do(ctx context.Context, u *url.URL) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: get %s", u)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		f.limiter.OnSuccess()
		return resp, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		f.limiter.OnRateLimit()
		fallthrough
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		_ = resp.Body.Close()
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http %d from %s", resp.StatusCode, u), resp.StatusCode)
	default:
		_ = resp.Body.Close()
		return nil, &resilience.StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	cb := f.breakers.Get(u.Host)

	resp, err := resilience.DoVal(ctx, f.retryConfig(u), func(ctx context.Context) (*http.Response, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*http.Response, error) {
			return f.do(ctx, u)
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: download")
	}
	return resp.Body, nil
}

// Get fetches the URL and returns the whole body.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	cb := f.breakers.Get(u.Host)

	body, err := resilience.DoVal(ctx, f.retryConfig(u), func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) ([]byte, error) {
			resp, err := f.do(ctx, u)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: read %s", u), 0)
			}
			return data, nil
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: get")
	}
	return body, nil
}
