package edgar

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/xbrl"
)

// Constituent is one row of the S&P 500 constituents table.
type Constituent struct {
	Symbol   string
	Name     string
	Sector   string
	Industry string
	CIK      string
}

// ParseConstituents extracts the constituents table from the Wikipedia
// "List of S&P 500 companies" page. Columns are located by header text so
// reordering on the page does not break parsing.
func ParseConstituents(r io.Reader) ([]Constituent, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: parse constituents page")
	}

	table := doc.Find("table#constituents").First()
	if table.Length() == 0 {
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, eris.New("edgar: S&P 500 table not found")
	}

	col := map[string]int{}
	table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		col[strings.ToLower(strings.TrimSpace(th.Text()))] = i
	})
	index := func(def int, names ...string) int {
		for _, n := range names {
			if i, ok := col[n]; ok {
				return i
			}
		}
		return def
	}
	iSymbol := index(0, "symbol", "ticker")
	iName := index(1, "security", "company")
	iSector := index(-1, "gics sector", "sector")
	iIndustry := index(-1, "gics sub-industry", "sub-industry")
	iCIK := index(-1, "cik")

	var out []Constituent
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 2 {
			return
		}
		text := func(i int) string {
			if i < 0 || i >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(i).Text())
		}
		c := Constituent{
			Symbol:   strings.ToUpper(text(iSymbol)),
			Name:     text(iName),
			Sector:   text(iSector),
			Industry: text(iIndustry),
		}
		if cik := text(iCIK); cik != "" {
			c.CIK = xbrl.PadCIK(cik)
		}
		if c.Symbol != "" {
			out = append(out, c)
		}
	})
	if len(out) == 0 {
		return nil, eris.New("edgar: S&P 500 table has no rows")
	}
	return out, nil
}

// SP500 fetches the current S&P 500 constituents.
func (c *Client) SP500(ctx context.Context) ([]Constituent, error) {
	data, err := c.get(ctx, EndpointSP500, c.opts.ConstituentsURL)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: sp500")
	}
	return ParseConstituents(bytes.NewReader(data))
}
