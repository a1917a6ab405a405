package edgar

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/fetcher"
	"github.com/sells-group/edgar-metrics/internal/xbrl"
)

// Ticker is one row of the SEC ticker map.
type Ticker struct {
	Ticker string `json:"ticker"`
	CIK    string `json:"cik"`
	Title  string `json:"title"`
}

// TickerMap indexes tickers by normalized symbol.
type TickerMap map[string]Ticker

// NormalizeTicker upper-cases a symbol and strips dots, dashes and spaces so
// BRK.B, BRK-B and brk b all match.
func NormalizeTicker(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', ' ', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(symbol)))
}

// Lookup finds the entry for symbol.
func (m TickerMap) Lookup(symbol string) (Ticker, bool) {
	t, ok := m[NormalizeTicker(symbol)]
	return t, ok
}

// Sorted returns every entry ordered by ticker.
func (m TickerMap) Sorted() []Ticker {
	out := make([]Ticker, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

type tickerRecord struct {
	CIK    xbrl.FlexString `json:"cik_str"`
	Ticker string          `json:"ticker"`
	Title  string          `json:"title"`
}

// ParseTickers decodes company_tickers.json, an object keyed by row index.
func ParseTickers(data []byte) (TickerMap, error) {
	raw, err := fetcher.DecodeJSONObject[map[string]tickerRecord](bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "edgar: parse tickers")
	}
	out := make(TickerMap, len(*raw))
	for _, rec := range *raw {
		symbol := strings.ToUpper(strings.TrimSpace(rec.Ticker))
		if symbol == "" {
			continue
		}
		out[NormalizeTicker(symbol)] = Ticker{
			Ticker: symbol,
			CIK:    xbrl.PadCIK(rec.CIK.String()),
			Title:  rec.Title,
		}
	}
	if len(out) == 0 {
		return nil, eris.New("edgar: ticker map is empty")
	}
	return out, nil
}

// Tickers fetches the SEC ticker→CIK map.
func (c *Client) Tickers(ctx context.Context) (TickerMap, error) {
	data, err := c.get(ctx, EndpointTickers, c.opts.TickersURL)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: tickers")
	}
	return ParseTickers(data)
}
