package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickerEntry struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

func TestDecodeJSONObject(t *testing.T) {
	t.Parallel()

	obj, err := DecodeJSONObject[map[string]tickerEntry](strings.NewReader(
		`{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."}}`))
	require.NoError(t, err)
	assert.Equal(t, tickerEntry{CIK: 320193, Ticker: "AAPL", Title: "Apple Inc."}, (*obj)["0"])
}

func TestDecodeJSONObject_Invalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeJSONObject[tickerEntry](strings.NewReader(`{"cik_str":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json: decode object")
}
