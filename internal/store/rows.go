package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/model"
)

var companyColumns = []string{
	"run_id", "cik", "symbol", "name", "sic", "sic_description",
	"sector", "industry", "fye", "ifrs",
}

var metricColumns = []string{
	"run_id", "cik", "fy", "metric", "value", "unit", "period_type", "end_date",
	"form", "accn", "source_type", "selected_tag", "composite_name",
	"computed_from", "confidence", "reason", "is_derived", "components", "position",
}

var benchmarkColumns = []string{
	"run_id", "fy", "metric", "sector", "industry",
	"mean", "median", "max", "min", "p25", "p75", "sample_size",
}

var rankingColumns = []string{
	"run_id", "fy", "metric", "ranking_type", "sector", "industry",
	"rank", "cik", "symbol", "value", "composite_score",
}

var (
	companyKeys   = []string{"run_id", "cik"}
	metricKeys    = []string{"run_id", "cik", "fy", "metric"}
	benchmarkKeys = []string{"run_id", "fy", "metric", "sector", "industry"}
	rankingKeys   = []string{"run_id", "fy", "metric", "ranking_type", "sector", "industry", "cik"}
)

func companyRow(runID string, c model.CompanyContext) []any {
	return []any{
		runID, c.CIK, c.Symbol, c.Name, c.SIC, c.SICDescription,
		c.Sector, c.Industry, c.FiscalYearEnd, c.IFRS,
	}
}

func metricRow(runID string, r model.CompanyResult, pos int, m model.ResolvedMetric) ([]any, error) {
	var value *float64
	if m.Found() && m.Finite() {
		v := m.Value
		value = &v
	}
	var end *time.Time
	if !m.End.IsZero() {
		e := m.End.UTC()
		end = &e
	}
	components := []byte("[]")
	if len(m.Components) > 0 {
		b, err := json.Marshal(m.Components)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal components for %s", m.Metric)
		}
		components = b
	}
	return []any{
		runID, r.Company.CIK, r.FY, m.Metric, value, m.Unit, string(m.PeriodType), end,
		m.Form, m.Accn, string(m.Source), m.Concept, m.Composite,
		strings.Join(m.ComputedFrom, ";"), model.ClampConfidence(m.Confidence), m.Reason, m.Derived, components, pos,
	}, nil
}

func metricRows(runID string, results []model.CompanyResult) ([][]any, error) {
	var rows [][]any
	for _, r := range results {
		for i, m := range r.Metrics {
			row, err := metricRow(runID, r, i, m)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func benchmarkRow(runID string, b model.BenchmarkRecord) []any {
	return []any{
		runID, b.FY, b.Metric, b.Sector, b.Industry,
		b.Mean, b.Median, b.Max, b.Min, b.P25, b.P75, b.SampleSize,
	}
}

func rankingRow(runID string, r model.RankingRecord) []any {
	return []any{
		runID, r.FY, r.Metric, string(r.Type), r.Sector, r.Industry,
		r.Rank, r.CIK, r.Symbol, r.Value, r.CompositeScore,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

// scanMetric reads the metricColumns minus run_id, cik and fy.
func scanMetric(row scannable) (model.ResolvedMetric, error) {
	var (
		m            model.ResolvedMetric
		value        *float64
		end          *time.Time
		periodType   string
		source       string
		computedFrom string
		components   []byte
	)
	err := row.Scan(&m.Metric, &value, &m.Unit, &periodType, &end,
		&m.Form, &m.Accn, &source, &m.Concept, &m.Composite,
		&computedFrom, &m.Confidence, &m.Reason, &m.Derived, &components)
	if err != nil {
		return m, eris.Wrap(err, "store: scan metric")
	}
	if value != nil {
		m.Value = *value
	}
	if end != nil {
		m.End = end.UTC()
	}
	m.PeriodType = model.PeriodType(periodType)
	m.Source = model.SourceKind(source)
	if computedFrom != "" {
		m.ComputedFrom = strings.Split(computedFrom, ";")
	}
	if len(components) > 0 {
		if err := json.Unmarshal(components, &m.Components); err != nil {
			return m, eris.Wrapf(err, "store: unmarshal components for %s", m.Metric)
		}
		if len(m.Components) == 0 {
			m.Components = nil
		}
	}
	return m, nil
}

const metricSelect = `metric, value, unit, period_type, end_date, form, accn, source_type,
	selected_tag, composite_name, computed_from, confidence, reason, is_derived, components`

func scanBenchmark(row scannable) (model.BenchmarkRecord, error) {
	var b model.BenchmarkRecord
	err := row.Scan(&b.FY, &b.Metric, &b.Sector, &b.Industry,
		&b.Mean, &b.Median, &b.Max, &b.Min, &b.P25, &b.P75, &b.SampleSize)
	return b, eris.Wrap(err, "store: scan benchmark")
}

const benchmarkSelect = `fy, metric, sector, industry, mean, median, max, min, p25, p75, sample_size`

func scanRanking(row scannable) (model.RankingRecord, error) {
	var (
		r   model.RankingRecord
		typ string
	)
	err := row.Scan(&r.FY, &r.Metric, &typ, &r.Sector, &r.Industry,
		&r.Rank, &r.CIK, &r.Symbol, &r.Value, &r.CompositeScore)
	r.Type = model.RankingType(typ)
	return r, eris.Wrap(err, "store: scan ranking")
}

const rankingSelect = `fy, metric, ranking_type, sector, industry, rank, cik, symbol, value, composite_score`

func decodeResult(data []byte) (*model.RunResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var res model.RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run result")
	}
	return &res, nil
}
