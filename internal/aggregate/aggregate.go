// Package aggregate turns per-company metric results into cross-sectional
// benchmark statistics, per-metric leaderboards and a normalized composite
// leaderboard. It is pure and runs once all companies of a fiscal year have
// been evaluated.
package aggregate

import (
	"sort"

	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/model"
)

const (
	topN      = 10
	minSample = 2
)

// Options controls which metrics and scopes are aggregated.
type Options struct {
	// Metrics defaults to catalog.BenchmarkMetrics.
	Metrics []string
	// SectorScope adds a sector-level grouping between industry and global.
	SectorScope bool
}

// Result holds every record produced for one fiscal year.
type Result struct {
	Benchmarks []model.BenchmarkRecord
	Rankings   []model.RankingRecord
}

type entry struct {
	CIK      string
	Symbol   string
	Industry string
	Sector   string
	Values   map[string]float64
}

// group is one peer set. Industry and Sector are empty for the global scope.
type group struct {
	Industry string
	Sector   string
	Members  []entry
}

// Aggregate computes benchmarks and rankings over results for fy.
func Aggregate(results []model.CompanyResult, fy int, opts Options) Result {
	metrics := opts.Metrics
	if len(metrics) == 0 {
		metrics = catalog.BenchmarkMetrics
	}
	groups := groupsOf(collect(results, metrics), opts.SectorScope)
	return Result{
		Benchmarks: benchmarks(groups, metrics, fy),
		Rankings:   rankings(groups, metrics, fy),
	}
}

// Benchmarks computes only the benchmark records.
func Benchmarks(results []model.CompanyResult, fy int, opts Options) []model.BenchmarkRecord {
	return Aggregate(results, fy, opts).Benchmarks
}

// Rankings computes only the ranking records.
func Rankings(results []model.CompanyResult, fy int, opts Options) []model.RankingRecord {
	return Aggregate(results, fy, opts).Rankings
}

// collect extracts the finite benchmark values of every classified company,
// ordered by CIK. A CIK seen twice keeps its first result.
func collect(results []model.CompanyResult, metrics []string) []entry {
	wanted := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		wanted[m] = true
	}

	seen := make(map[string]bool, len(results))
	var out []entry
	for _, res := range results {
		c := res.Company
		if c.CIK == "" || c.Industry == "" || seen[c.CIK] {
			continue
		}
		e := entry{CIK: c.CIK, Symbol: c.Symbol, Industry: c.Industry, Sector: c.Sector, Values: make(map[string]float64)}
		for _, m := range res.Metrics {
			if wanted[m.Metric] && m.Found() && m.Finite() {
				e.Values[m.Metric] = m.Value
			}
		}
		if len(e.Values) == 0 {
			continue
		}
		seen[c.CIK] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CIK < out[j].CIK })
	return out
}

// groupsOf partitions entries into industry groups (sorted by name), then
// sector groups when requested, then the global group.
func groupsOf(entries []entry, sectors bool) []group {
	byIndustry := make(map[string][]entry)
	bySector := make(map[string][]entry)
	for _, e := range entries {
		byIndustry[e.Industry] = append(byIndustry[e.Industry], e)
		if e.Sector != "" {
			bySector[e.Sector] = append(bySector[e.Sector], e)
		}
	}

	var groups []group
	for _, name := range sortedKeys(byIndustry) {
		members := byIndustry[name]
		groups = append(groups, group{Industry: name, Sector: members[0].Sector, Members: members})
	}
	if sectors {
		for _, name := range sortedKeys(bySector) {
			groups = append(groups, group{Sector: name, Members: bySector[name]})
		}
	}
	if len(entries) > 0 {
		groups = append(groups, group{Members: entries})
	}
	return groups
}

func sortedKeys(m map[string][]entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (g group) values(metric string) []float64 {
	var vs []float64
	for _, e := range g.Members {
		if v, ok := e.Values[metric]; ok {
			vs = append(vs, v)
		}
	}
	return vs
}

func benchmarks(groups []group, metrics []string, fy int) []model.BenchmarkRecord {
	var out []model.BenchmarkRecord
	for _, g := range groups {
		for _, metric := range metrics {
			vs := g.values(metric)
			if len(vs) < minSample {
				continue
			}
			s, _ := Summarize(vs)
			out = append(out, model.BenchmarkRecord{
				Industry:   g.Industry,
				Sector:     g.Sector,
				Metric:     metric,
				FY:         fy,
				Mean:       s.Mean,
				Median:     s.Median,
				Max:        s.Max,
				Min:        s.Min,
				P25:        s.P25,
				P75:        s.P75,
				SampleSize: s.N,
			})
		}
	}
	return out
}

type scored struct {
	entry
	Score float64
}

// order sorts descending by score, or ascending when lowerIsBetter. Equal
// scores keep CIK order.
func order(items []scored, lowerIsBetter bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			if lowerIsBetter {
				return a.Score < b.Score
			}
			return a.Score > b.Score
		}
		return a.CIK < b.CIK
	})
}

func rankings(groups []group, metrics []string, fy int) []model.RankingRecord {
	var out []model.RankingRecord
	for _, g := range groups {
		for _, metric := range metrics {
			var items []scored
			for _, e := range g.Members {
				if v, ok := e.Values[metric]; ok {
					items = append(items, scored{entry: e, Score: v})
				}
			}
			if len(items) < minSample {
				continue
			}
			order(items, catalog.LowerIsBetter(metric))
			out = append(out, leaderboard(g, metric, fy, items, false)...)
		}

		items := composite(g, metrics)
		if len(items) < minSample {
			continue
		}
		order(items, false)
		out = append(out, leaderboard(g, model.CompositeMetric, fy, items, true)...)
	}
	return out
}

// composite scores every member of g by summing its min-max normalized
// metric values against the group. Metrics with fewer than two peers are
// skipped; lower-is-better metrics are inverted.
func composite(g group, metrics []string) []scored {
	type bounds struct{ lo, hi float64 }
	ranges := make(map[string]bounds)
	for _, metric := range metrics {
		vs := g.values(metric)
		if len(vs) < minSample {
			continue
		}
		s, _ := Summarize(vs)
		ranges[metric] = bounds{s.Min, s.Max}
	}

	items := make([]scored, 0, len(g.Members))
	for _, e := range g.Members {
		var total float64
		for _, metric := range metrics {
			b, ok := ranges[metric]
			v, has := e.Values[metric]
			if !ok || !has {
				continue
			}
			n := normalize(v, b.lo, b.hi)
			if catalog.LowerIsBetter(metric) {
				n = 1 - n
			}
			total += n
		}
		items = append(items, scored{entry: e, Score: total})
	}
	return items
}

// leaderboard emits the Top10 cut followed by the full ordering.
func leaderboard(g group, metric string, fy int, items []scored, isComposite bool) []model.RankingRecord {
	rec := func(rank int, it scored, typ model.RankingType) model.RankingRecord {
		score := it.Score
		r := model.RankingRecord{
			CIK:      it.CIK,
			Symbol:   it.Symbol,
			Industry: g.Industry,
			Sector:   g.Sector,
			Metric:   metric,
			FY:       fy,
			Type:     typ,
			Rank:     rank,
		}
		if isComposite {
			r.CompositeScore = &score
		} else {
			r.Value = &score
		}
		return r
	}

	out := make([]model.RankingRecord, 0, min(len(items), topN)+len(items))
	for i, it := range items {
		if i == topN {
			break
		}
		out = append(out, rec(i+1, it, model.RankingTop10))
	}
	for i, it := range items {
		out = append(out, rec(i+1, it, model.RankingAll))
	}
	return out
}
