package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/model"
)

// tagColumns defines the ordered long-format metric columns.
var tagColumns = []string{
	"cik", "symbol", "name", "sector", "industry", "sic", "sic_description", "fye", "fy",
	"metric", "is_derived", "value", "unit", "period_type", "end", "form", "accn",
	"source_type", "selected_tag", "composite_name", "computed_from", "confidence",
	"reason", "components",
}

var companyColumns = []string{
	"symbol", "cik", "name", "sector", "industry", "sic", "sic_description", "fye",
}

var benchmarkColumns = []string{
	"industry", "sector", "metric", "fy", "average_value", "median_value", "max_value",
	"min_value", "percentile25", "percentile75", "sample_size",
}

var rankingColumns = []string{
	"cik", "symbol", "industry", "sector", "metric", "ranking_type", "rank", "value",
	"composite_score", "fy",
}

// wideBaseColumns lead every row of the wide company table.
var wideBaseColumns = []string{
	"cik", "symbol", "name", "sector", "industry", "sic", "sic_description", "fye",
}

// rankScopes orders the rank columns appended per metric in the wide table.
var rankScopes = []string{"Industry", "Sector", "All"}

// WriteTags writes one row per found, finite metric.
func WriteTags(w io.Writer, results []model.CompanyResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(tagColumns); err != nil {
		return eris.Wrap(err, "tags export: write header")
	}

	for _, r := range results {
		for _, m := range r.Metrics {
			if !m.Found() || !m.Finite() {
				continue
			}
			row, err := buildTagRow(r, m)
			if err != nil {
				return err
			}
			if err := cw.Write(row); err != nil {
				return eris.Wrap(err, "tags export: write row")
			}
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "tags export: flush")
}

func buildTagRow(r model.CompanyResult, m model.ResolvedMetric) ([]string, error) {
	c := r.Company
	components := ""
	if len(m.Components) > 0 {
		b, err := json.Marshal(m.Components)
		if err != nil {
			return nil, eris.Wrapf(err, "tags export: marshal components for %s %s", c.CIK, m.Metric)
		}
		components = string(b)
	}

	return []string{
		c.CIK,
		c.Symbol,
		c.Name,
		c.Sector,
		c.Industry,
		c.SIC,
		c.SICDescription,
		c.FiscalYearEnd,
		strconv.Itoa(r.FY),
		m.Metric,
		strconv.FormatBool(m.Derived),
		fmt.Sprintf("%.6f", m.Value),
		m.Unit,
		string(m.PeriodType),
		formatDate(m),
		m.Form,
		m.Accn,
		string(m.Source),
		m.Concept,
		m.Composite,
		strings.Join(m.ComputedFrom, ";"),
		fmt.Sprintf("%.3f", m.Confidence),
		m.Reason,
		components,
	}, nil
}

// WriteCompanies writes the company roster.
func WriteCompanies(w io.Writer, companies []model.CompanyContext) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(companyColumns); err != nil {
		return eris.Wrap(err, "companies export: write header")
	}
	for _, c := range companies {
		row := []string{c.Symbol, c.CIK, c.Name, c.Sector, c.Industry, c.SIC, c.SICDescription, c.FiscalYearEnd}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "companies export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "companies export: flush")
}

// WriteBenchmarks writes peer-group statistics.
func WriteBenchmarks(w io.Writer, records []model.BenchmarkRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(benchmarkColumns); err != nil {
		return eris.Wrap(err, "benchmarks export: write header")
	}
	for _, b := range records {
		row := []string{
			b.Industry,
			b.Sector,
			b.Metric,
			strconv.Itoa(b.FY),
			formatFloat(b.Mean),
			formatFloat(b.Median),
			formatFloat(b.Max),
			formatFloat(b.Min),
			formatFloat(b.P25),
			formatFloat(b.P75),
			strconv.Itoa(b.SampleSize),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "benchmarks export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "benchmarks export: flush")
}

// WriteRankings writes leaderboard rows. Unset values are left blank.
func WriteRankings(w io.Writer, records []model.RankingRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(rankingColumns); err != nil {
		return eris.Wrap(err, "rankings export: write header")
	}
	for _, r := range records {
		row := []string{
			r.CIK,
			r.Symbol,
			r.Industry,
			r.Sector,
			r.Metric,
			string(r.Type),
			strconv.Itoa(r.Rank),
			formatOptional(r.Value),
			formatOptional(r.CompositeScore),
			strconv.Itoa(r.FY),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "rankings export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "rankings export: flush")
}

// WriteWide writes one row per company with a column per metric followed by
// the company's rank in each scope of the "All" leaderboards.
func WriteWide(w io.Writer, results []model.CompanyResult, rankings []model.RankingRecord) error {
	sorted := make([]model.CompanyResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Company.CIK < sorted[j].Company.CIK })

	metricSet := make(map[string]bool)
	for _, r := range sorted {
		for _, m := range r.Metrics {
			if m.Found() && m.Finite() {
				metricSet[m.Metric] = true
			}
		}
	}
	metrics := make([]string, 0, len(metricSet))
	for m := range metricSet {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	rankMetricSet := make(map[string]bool)
	ranks := make(map[string]int)
	for _, r := range rankings {
		if r.Type != model.RankingAll {
			continue
		}
		rankMetricSet[r.Metric] = true
		ranks[rankKey(r.CIK, r.Metric, r.Scope())] = r.Rank
	}
	rankMetrics := make([]string, 0, len(rankMetricSet))
	for m := range rankMetricSet {
		rankMetrics = append(rankMetrics, m)
	}
	sort.Strings(rankMetrics)

	header := append([]string{}, wideBaseColumns...)
	header = append(header, metrics...)
	for _, m := range rankMetrics {
		for _, scope := range rankScopes {
			header = append(header, m+"_Rank_"+scope)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "wide export: write header")
	}

	for _, r := range sorted {
		c := r.Company
		row := []string{c.CIK, c.Symbol, c.Name, c.Sector, c.Industry, c.SIC, c.SICDescription, c.FiscalYearEnd}

		values := make(map[string]string, len(r.Metrics))
		for _, m := range r.Metrics {
			if m.Found() && m.Finite() {
				values[m.Metric] = fmt.Sprintf("%.6f", m.Value)
			}
		}
		for _, m := range metrics {
			row = append(row, values[m])
		}
		for _, m := range rankMetrics {
			for _, scope := range rankScopes {
				rank, ok := ranks[rankKey(c.CIK, m, scope)]
				if !ok {
					row = append(row, "")
					continue
				}
				row = append(row, strconv.Itoa(rank))
			}
		}

		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "wide export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "wide export: flush")
}

func rankKey(cik, metric, scope string) string {
	return cik + "|" + metric + "|" + scope
}

func formatDate(m model.ResolvedMetric) string {
	if m.End.IsZero() {
		return ""
	}
	return m.End.Format("2006-01-02")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
