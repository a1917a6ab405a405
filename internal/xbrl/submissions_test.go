package xbrl

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-metrics/internal/sector"
)

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

const sampleSubmissions = `{
  "cik": "320193",
  "name": "Apple Inc.",
  "tickers": ["AAPL"],
  "sic": "3571",
  "sicDescription": "Electronic Computers",
  "fiscalYearEnd": "0930",
  "filings": {"recent": {}}
}`

func TestParseSubmissions(t *testing.T) {
	t.Parallel()

	s, err := ParseSubmissions(strings.NewReader(sampleSubmissions))
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", s.Name)
	assert.Equal(t, []string{"AAPL"}, s.Tickers)
	assert.Equal(t, "3571", s.SIC.String())
	assert.Equal(t, "0930", s.FiscalYearEnd.String())

	_, err = ParseSubmissions(strings.NewReader("["))
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	t.Parallel()

	s, err := ParseSubmissions(strings.NewReader(sampleSubmissions))
	require.NoError(t, err)

	ctx := Context("320193", "", "", s, false)
	assert.Equal(t, "0000320193", ctx.CIK)
	assert.Equal(t, "AAPL", ctx.Symbol)
	assert.Equal(t, "Apple Inc.", ctx.Name)
	assert.Equal(t, "3571", ctx.SIC)
	assert.Equal(t, sector.Industrials, ctx.Sector)
	assert.Equal(t, "Electronic Computers", ctx.Industry)
	assert.Equal(t, "0930", ctx.FiscalYearEnd)
}

func TestContext_WithoutSubmissions(t *testing.T) {
	t.Parallel()

	ctx := Context("42", "ACME", "Acme Corp", nil, true)
	assert.Equal(t, "0000000042", ctx.CIK)
	assert.Equal(t, sector.Unknown, ctx.Sector)
	assert.Equal(t, sector.Unknown, ctx.Industry)
	assert.Empty(t, ctx.FiscalYearEnd)
	assert.True(t, ctx.IFRS)
}
