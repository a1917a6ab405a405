package model

import "time"

// RunStatus represents the current state of a metrics run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// CompanyContext describes one filer for the duration of a run. It is built
// once from submissions metadata and never mutated afterwards.
type CompanyContext struct {
	CIK            string `json:"cik"`
	Symbol         string `json:"symbol,omitempty"`
	Name           string `json:"name"`
	SIC            string `json:"sic,omitempty"`
	SICDescription string `json:"sic_description,omitempty"`
	Sector         string `json:"sector"`
	Industry       string `json:"industry"`
	FiscalYearEnd  string `json:"fye,omitempty"` // raw MMDD as reported
	IFRS           bool   `json:"ifrs,omitempty"`
}

// Run represents a single batch evaluation for one fiscal year.
type Run struct {
	ID        string     `json:"id"`
	FY        int        `json:"fy"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Companies  int              `json:"companies"`
	Metrics    int              `json:"metrics"`
	Benchmarks int              `json:"benchmarks"`
	Rankings   int              `json:"rankings"`
	Failures   []CompanyFailure `json:"failures,omitempty"`
	Duration   int64            `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
}

// CompanyFailure records a company dropped from a run.
type CompanyFailure struct {
	CIK       string `json:"cik"`
	Symbol    string `json:"symbol,omitempty"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type,omitempty"` // transient or permanent
}

// CompanyResult is the per-company output of the engine.
type CompanyResult struct {
	Company CompanyContext   `json:"company"`
	FY      int              `json:"fy"`
	Metrics []ResolvedMetric `json:"metrics"`
	Mined   []MinedConcept   `json:"mined,omitempty"`
}

// Metric returns the resolved metric with the given name.
func (r CompanyResult) Metric(name string) (ResolvedMetric, bool) {
	for _, m := range r.Metrics {
		if m.Metric == name {
			return m, true
		}
	}
	return ResolvedMetric{}, false
}

// MinedConcept is a growth concept discovered by name pattern while
// evaluating a company.
type MinedConcept struct {
	CIK     string `json:"cik"`
	Metric  string `json:"metric"`
	Concept string `json:"qname"`
	Used    bool   `json:"used"`
}
