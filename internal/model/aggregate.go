package model

// RankingType distinguishes leaderboard cuts.
type RankingType string

const (
	RankingTop10 RankingType = "Top10"
	RankingAll   RankingType = "All"
)

// CompositeMetric is the metric name carried by composite ranking records.
const CompositeMetric = "Composite"

// BenchmarkRecord summarizes one metric over a peer group. Industry and
// Sector are both empty for the global scope.
type BenchmarkRecord struct {
	Industry   string  `json:"industry"`
	Sector     string  `json:"sector"`
	Metric     string  `json:"metric"`
	FY         int     `json:"fy"`
	Mean       float64 `json:"average_value"`
	Median     float64 `json:"median_value"`
	Max        float64 `json:"max_value"`
	Min        float64 `json:"min_value"`
	P25        float64 `json:"percentile25"`
	P75        float64 `json:"percentile75"`
	SampleSize int     `json:"sample_size"`
}

// Global reports whether the record covers all companies.
func (b BenchmarkRecord) Global() bool {
	return b.Industry == "" && b.Sector == ""
}

// RankingRecord is one row of a leaderboard. Exactly one of Value and
// CompositeScore is set.
type RankingRecord struct {
	CIK            string      `json:"cik"`
	Symbol         string      `json:"symbol,omitempty"`
	Industry       string      `json:"industry"`
	Sector         string      `json:"sector"`
	Metric         string      `json:"metric"`
	FY             int         `json:"fy"`
	Type           RankingType `json:"ranking_type"`
	Rank           int         `json:"rank"`
	Value          *float64    `json:"value,omitempty"`
	CompositeScore *float64    `json:"composite_score,omitempty"`
}

// Scope returns "Industry", "Sector" or "All" for the record.
func (r RankingRecord) Scope() string {
	switch {
	case r.Industry != "":
		return "Industry"
	case r.Sector != "":
		return "Sector"
	default:
		return "All"
	}
}
