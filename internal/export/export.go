// Package export writes run outputs as CSV tables, an optional workbook,
// optional Turtle instances and an optional suggestions log.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/config"
	"github.com/sells-group/edgar-metrics/internal/model"
)

// Bundle is everything one run produced for a fiscal year.
type Bundle struct {
	FY         int
	Companies  []model.CompanyContext
	Results    []model.CompanyResult
	Benchmarks []model.BenchmarkRecord
	Rankings   []model.RankingRecord
}

// WriteAll writes every configured output for b into cfg.Dir and returns
// the paths written, in order.
func WriteAll(b Bundle, cfg config.OutputConfig) ([]string, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create dir %s", dir)
	}

	if len(b.Companies) == 0 {
		b.Companies = companiesOf(b.Results)
	}

	var paths []string
	add := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		if err := writeFile(path, fn); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	tables := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{fmt.Sprintf("tags_%d.csv", b.FY), func(w io.Writer) error { return WriteTags(w, b.Results) }},
		{fmt.Sprintf("companies_%d.csv", b.FY), func(w io.Writer) error { return WriteCompanies(w, b.Companies) }},
		{fmt.Sprintf("benchmarks_%d.csv", b.FY), func(w io.Writer) error { return WriteBenchmarks(w, b.Benchmarks) }},
		{fmt.Sprintf("rankings_%d.csv", b.FY), func(w io.Writer) error { return WriteRankings(w, b.Rankings) }},
		{fmt.Sprintf("companies_wide_%d.csv", b.FY), func(w io.Writer) error { return WriteWide(w, b.Results, b.Rankings) }},
	}
	for _, t := range tables {
		if err := add(t.name, t.fn); err != nil {
			return paths, err
		}
	}

	if cfg.EmitXLSX {
		path := filepath.Join(dir, fmt.Sprintf("metrics_%d.xlsx", b.FY))
		if err := WriteXLSX(path, b); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if cfg.EmitTTL {
		opts := TTLOptions{
			IncludeIndustryScope: cfg.IncludeIndustryScope,
			IncludeSectorScope:   cfg.IncludeSectorScope,
		}
		if err := add(fmt.Sprintf("metrics_%d.ttl", b.FY), func(w io.Writer) error { return WriteTTL(w, b, opts) }); err != nil {
			return paths, err
		}
	}

	if cfg.Suggestions != "" {
		var n int
		err := writeFile(cfg.Suggestions, func(w io.Writer) error {
			var err error
			n, err = WriteSuggestions(w, b.Results)
			return err
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, cfg.Suggestions)
		zap.L().Debug("export: suggestions written", zap.String("path", cfg.Suggestions), zap.Int("count", n))
	}

	zap.L().Info("export: outputs written",
		zap.Int("fy", b.FY),
		zap.String("dir", dir),
		zap.Int("files", len(paths)),
	)
	return paths, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create dir %s", dir)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
