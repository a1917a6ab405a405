package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/edgar"
	"github.com/sells-group/edgar-metrics/internal/xbrl"
)

// Target is one company to evaluate. Either CIK or FactsPath is set.
type Target struct {
	CIK       string `json:"cik,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Name      string `json:"name,omitempty"`
	FactsPath string `json:"facts_path,omitempty"`
}

// Local reports whether the target is read from a companyfacts file.
func (t Target) Local() bool { return t.FactsPath != "" }

func (t Target) label() string {
	switch {
	case t.Symbol != "":
		return t.Symbol
	case t.CIK != "":
		return t.CIK
	default:
		return filepath.Base(t.FactsPath)
	}
}

// Selection names the companies of a run. Sources combine; duplicates by
// CIK are dropped and Limit, when positive, caps the result.
type Selection struct {
	CIKs       []string
	Tickers    []string
	SP500      bool
	FactsFiles []string
	FactsDirs  []string
	Limit      int
}

// Empty reports whether nothing was selected.
func (s Selection) Empty() bool {
	return len(s.CIKs) == 0 && len(s.Tickers) == 0 && !s.SP500 &&
		len(s.FactsFiles) == 0 && len(s.FactsDirs) == 0
}

// Directory resolves symbols and index membership to CIKs.
type Directory interface {
	Tickers(ctx context.Context) (edgar.TickerMap, error)
	SP500(ctx context.Context) ([]edgar.Constituent, error)
}

// Resolve expands sel into targets. dir is only consulted for tickers and
// the S&P 500 and may be nil otherwise.
func Resolve(ctx context.Context, dir Directory, sel Selection) ([]Target, error) {
	var targets []Target

	for _, path := range sel.FactsFiles {
		targets = append(targets, Target{FactsPath: path})
	}
	for _, d := range sel.FactsDirs {
		files, err := factsFiles(d)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			targets = append(targets, Target{FactsPath: path})
		}
	}

	for _, cik := range sel.CIKs {
		if strings.TrimSpace(cik) == "" {
			continue
		}
		targets = append(targets, Target{CIK: xbrl.PadCIK(cik)})
	}

	var tickers edgar.TickerMap
	loadTickers := func() (edgar.TickerMap, error) {
		if tickers != nil {
			return tickers, nil
		}
		if dir == nil {
			return nil, eris.New("pipeline: ticker lookup requires an EDGAR client")
		}
		m, err := dir.Tickers(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load ticker map")
		}
		tickers = m
		return tickers, nil
	}

	if len(sel.Tickers) > 0 {
		m, err := loadTickers()
		if err != nil {
			return nil, err
		}
		for _, sym := range sel.Tickers {
			t, ok := m.Lookup(sym)
			if !ok {
				zap.L().Warn("pipeline: unknown ticker, skipping", zap.String("ticker", sym))
				continue
			}
			targets = append(targets, Target{CIK: xbrl.PadCIK(t.CIK), Symbol: t.Ticker, Name: t.Title})
		}
	}

	if sel.SP500 {
		if dir == nil {
			return nil, eris.New("pipeline: S&P 500 selection requires an EDGAR client")
		}
		constituents, err := dir.SP500(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load S&P 500")
		}
		for _, c := range constituents {
			cik := c.CIK
			if cik == "" {
				m, err := loadTickers()
				if err != nil {
					return nil, err
				}
				t, ok := m.Lookup(c.Symbol)
				if !ok {
					zap.L().Warn("pipeline: constituent without CIK, skipping", zap.String("ticker", c.Symbol))
					continue
				}
				cik = t.CIK
			}
			targets = append(targets, Target{CIK: xbrl.PadCIK(cik), Symbol: c.Symbol, Name: c.Name})
		}
	}

	targets = dedupe(targets)
	if sel.Limit > 0 && len(targets) > sel.Limit {
		targets = targets[:sel.Limit]
	}
	return targets, nil
}

// dedupe keeps the first target per CIK and per facts file.
func dedupe(targets []Target) []Target {
	seen := make(map[string]bool, len(targets))
	out := targets[:0]
	for _, t := range targets {
		key := "cik:" + t.CIK
		if t.Local() {
			key = "file:" + filepath.Clean(t.FactsPath)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// factsFiles lists the *.json documents directly under dir, sorted.
func factsFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read facts dir %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
