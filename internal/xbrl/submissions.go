package xbrl

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/sector"
)

// Submissions is the subset of the EDGAR submissions document the engine
// needs to classify a filer.
type Submissions struct {
	CIK            FlexString `json:"cik"`
	Name           string     `json:"name"`
	Tickers        []string   `json:"tickers"`
	SIC            FlexString `json:"sic"`
	SICDescription string     `json:"sicDescription"`
	FiscalYearEnd  FlexString `json:"fiscalYearEnd"`
}

// ParseSubmissions parses an EDGAR submissions document.
func ParseSubmissions(r io.Reader) (*Submissions, error) {
	var s Submissions
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, eris.Wrap(err, "xbrl: parse submissions")
	}
	return &s, nil
}

// Context builds the CompanyContext for a filer. sub may be nil when only a
// companyfacts document is available; the filer is then Unknown with a
// Dec 31 year end.
func Context(cik, symbol, name string, sub *Submissions, ifrs bool) model.CompanyContext {
	ctx := model.CompanyContext{
		CIK:    PadCIK(cik),
		Symbol: symbol,
		Name:   name,
		IFRS:   ifrs,
	}
	var sic, desc string
	if sub != nil {
		sic = sector.NormalizeSIC(sub.SIC.String())
		desc = sub.SICDescription
		ctx.FiscalYearEnd = sub.FiscalYearEnd.String()
		if ctx.Name == "" {
			ctx.Name = sub.Name
		}
		if ctx.Symbol == "" && len(sub.Tickers) > 0 {
			ctx.Symbol = sub.Tickers[0]
		}
		if ctx.CIK == "" {
			ctx.CIK = PadCIK(sub.CIK.String())
		}
	}
	ctx.SIC = sic
	ctx.SICDescription = desc
	ctx.Sector, ctx.Industry = sector.Classify(sic, desc)
	return ctx
}
