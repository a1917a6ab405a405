// Package store persists pipeline runs and their outputs: company contexts,
// resolved metrics, benchmarks and rankings.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/config"
	"github.com/sells-group/edgar-metrics/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	FY           int             `json:"fy,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// BenchmarkFilter selects benchmark rows. An empty RunID means the most
// recent complete run (for FY when set).
type BenchmarkFilter struct {
	RunID    string `json:"run_id,omitempty"`
	FY       int    `json:"fy,omitempty"`
	Metric   string `json:"metric,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// RankingFilter selects ranking rows. RunID behaves as in BenchmarkFilter.
type RankingFilter struct {
	RunID    string            `json:"run_id,omitempty"`
	FY       int               `json:"fy,omitempty"`
	Metric   string            `json:"metric,omitempty"`
	Type     model.RankingType `json:"type,omitempty"`
	Industry string            `json:"industry,omitempty"`
}

// Store defines the persistence interface for the metrics pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, fy int) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Outputs
	SaveCompanies(ctx context.Context, runID string, companies []model.CompanyContext) error
	SaveMetrics(ctx context.Context, runID string, results []model.CompanyResult) error
	SaveBenchmarks(ctx context.Context, runID string, records []model.BenchmarkRecord) error
	SaveRankings(ctx context.Context, runID string, records []model.RankingRecord) error

	// Queries
	ListBenchmarks(ctx context.Context, filter BenchmarkFilter) ([]model.BenchmarkRecord, error)
	ListRankings(ctx context.Context, filter RankingFilter) ([]model.RankingRecord, error)
	CompanyMetrics(ctx context.Context, cik string, fy int) ([]model.ResolvedMetric, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend. The caller runs Migrate.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
