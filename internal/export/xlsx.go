package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/edgar-metrics/internal/model"
)

// Sheet names in the workbook, in order.
const (
	SheetCompanies  = "Companies"
	SheetMetrics    = "Metrics"
	SheetBenchmarks = "Benchmarks"
	SheetRankings   = "Rankings"
)

// WriteXLSX saves the bundle as a workbook with one sheet per table.
// Numeric columns are written as numbers; missing values stay empty.
func WriteXLSX(path string, b Bundle) error {
	f := xlsx.NewFile()

	companies := make([][]any, 0, len(b.Companies))
	for _, c := range b.Companies {
		companies = append(companies, []any{c.Symbol, c.CIK, c.Name, c.Sector, c.Industry, c.SIC, c.SICDescription, c.FiscalYearEnd})
	}
	if err := addSheet(f, SheetCompanies, companyColumns, companies); err != nil {
		return err
	}

	var metrics [][]any
	for _, r := range b.Results {
		c := r.Company
		for _, m := range r.Metrics {
			if !m.Found() || !m.Finite() {
				continue
			}
			metrics = append(metrics, []any{
				c.CIK, c.Symbol, c.Name, c.Sector, c.Industry, r.FY,
				m.Metric, m.Value, m.Unit, string(m.PeriodType), formatDate(m), m.Form,
				string(m.Source), m.Concept, m.Confidence, m.Derived,
			})
		}
	}
	if err := addSheet(f, SheetMetrics, metricSheetColumns, metrics); err != nil {
		return err
	}

	benchmarks := make([][]any, 0, len(b.Benchmarks))
	for _, r := range b.Benchmarks {
		benchmarks = append(benchmarks, []any{
			r.Industry, r.Sector, r.Metric, r.FY, r.Mean, r.Median, r.Max, r.Min, r.P25, r.P75, r.SampleSize,
		})
	}
	if err := addSheet(f, SheetBenchmarks, benchmarkColumns, benchmarks); err != nil {
		return err
	}

	rankings := make([][]any, 0, len(b.Rankings))
	for _, r := range b.Rankings {
		rankings = append(rankings, []any{
			r.CIK, r.Symbol, r.Industry, r.Sector, r.Metric, string(r.Type), r.Rank, r.Value, r.CompositeScore, r.FY,
		})
	}
	if err := addSheet(f, SheetRankings, rankingColumns, rankings); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx export: save %s", path)
	}
	return nil
}

// metricSheetColumns is a narrower cut of the tags table.
var metricSheetColumns = []string{
	"cik", "symbol", "name", "sector", "industry", "fy", "metric", "value", "unit",
	"period_type", "end", "form", "source_type", "selected_tag", "confidence", "is_derived",
}

func addSheet(f *xlsx.File, name string, header []string, rows [][]any) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "xlsx export: add sheet %s", name)
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}

	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			setCell(row.AddCell(), v)
		}
	}
	return nil
}

func setCell(cell *xlsx.Cell, v any) {
	switch val := v.(type) {
	case string:
		cell.SetString(val)
	case int:
		cell.SetInt(val)
	case float64:
		cell.SetFloat(val)
	case *float64:
		if val != nil {
			cell.SetFloat(*val)
		}
	case bool:
		cell.SetBool(val)
	}
}

// companiesOf returns the distinct companies of results in input order.
func companiesOf(results []model.CompanyResult) []model.CompanyContext {
	seen := make(map[string]bool, len(results))
	out := make([]model.CompanyContext, 0, len(results))
	for _, r := range results {
		if seen[r.Company.CIK] {
			continue
		}
		seen[r.Company.CIK] = true
		out = append(out, r.Company)
	}
	return out
}
