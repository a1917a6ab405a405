package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-metrics/internal/edgar"
)

func testTickerMap() edgar.TickerMap {
	return edgar.TickerMap{
		"AAPL": {Ticker: "AAPL", CIK: "0000320193", Title: "Apple Inc."},
		"BRKB": {Ticker: "BRK-B", CIK: "0001067983", Title: "BERKSHIRE HATHAWAY INC"},
	}
}

func TestSelectTickers(t *testing.T) {
	found, missing := selectTickers(testTickerMap(), []string{"brk.b", "nope"})
	require.Len(t, found, 1)
	assert.Equal(t, "0001067983", found[0].CIK)
	assert.Equal(t, []string{"nope"}, missing)

	all, missing := selectTickers(testTickerMap(), nil)
	assert.Len(t, all, 2)
	assert.Empty(t, missing)
	assert.Equal(t, "AAPL", all[0].Ticker)
}

func TestFormatTickers(t *testing.T) {
	var buf bytes.Buffer
	formatTickers(&buf, testTickerMap().Sorted())
	assert.Contains(t, buf.String(), "TICKER")
	assert.Contains(t, buf.String(), "BERKSHIRE HATHAWAY INC")
}
