package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/store"
)

// RunSnapshot holds a point-in-time view of recent pipeline runs.
type RunSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Totals over finished runs.
	Companies        int            `json:"companies"`
	Metrics          int            `json:"metrics"`
	CompanyFailures  int            `json:"company_failures"`
	AvgDurationMs    int64          `json:"avg_duration_ms"`
	FailuresByStage  map[string]int `json:"failures_by_stage,omitempty"`
	LatestCompleteID string         `json:"latest_complete_id,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store capability the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector summarizes run history from the store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new run collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes runs created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*RunSnapshot, error) {
	now := c.now().UTC()
	snap := &RunSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalDuration int64
	var timed int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			// ListRuns returns newest first.
			if snap.LatestCompleteID == "" {
				snap.LatestCompleteID = r.ID
			}
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Result == nil {
			continue
		}
		snap.Companies += r.Result.Companies
		snap.Metrics += r.Result.Metrics
		snap.CompanyFailures += len(r.Result.Failures)
		for _, f := range r.Result.Failures {
			if snap.FailuresByStage == nil {
				snap.FailuresByStage = make(map[string]int)
			}
			snap.FailuresByStage[f.Stage]++
		}
		if r.Result.Duration > 0 {
			totalDuration += r.Result.Duration
			timed++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if timed > 0 {
		snap.AvgDurationMs = totalDuration / int64(timed)
	}
	return snap, nil
}
