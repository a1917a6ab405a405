// Package fetcher downloads documents from the SEC hosts under a single
// shared request quota, retrying throttled and failed requests.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// Get fetches the URL and returns the whole body. Failures while reading
	// the body are retried like failed requests.
	Get(ctx context.Context, url string) ([]byte, error)
}
