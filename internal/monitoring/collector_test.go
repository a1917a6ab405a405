package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/store"
)

// mockRuns implements RunLister for testing.
type mockRuns struct {
	runs    []model.Run
	listErr error
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func fixedCollector(runs RunLister, now time.Time) *Collector {
	c := NewCollector(runs)
	c.now = func() time.Time { return now }
	return c
}

func TestCollector_Empty(t *testing.T) {
	c := NewCollector(&mockRuns{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0.0, snap.RunFailRate)
	assert.Nil(t, snap.FailuresByStage)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := &mockRuns{runs: []model.Run{
		{ID: "4", Status: model.RunStatusRunning, CreatedAt: now.Add(-30 * time.Minute)},
		{ID: "1", Status: model.RunStatusComplete, CreatedAt: now.Add(-1 * time.Hour), Result: &model.RunResult{
			Companies: 500, Metrics: 23500, Duration: 60000,
			Failures: []model.CompanyFailure{{CIK: "1", Stage: "fetch"}, {CIK: "2", Stage: "fetch"}},
		}},
		{ID: "2", Status: model.RunStatusComplete, CreatedAt: now.Add(-2 * time.Hour), Result: &model.RunResult{
			Companies: 10, Metrics: 470, Duration: 20000,
			Failures: []model.CompanyFailure{{CIK: "3", Stage: "evaluate"}},
		}},
		{ID: "3", Status: model.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour), Result: &model.RunResult{Error: "no companies"}},
		// Outside the lookback window.
		{ID: "5", Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour), Result: &model.RunResult{}},
	}}

	snap, err := fixedCollector(runs, now).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.001)
	assert.Equal(t, 510, snap.Companies)
	assert.Equal(t, 23970, snap.Metrics)
	assert.Equal(t, 3, snap.CompanyFailures)
	assert.Equal(t, map[string]int{"fetch": 2, "evaluate": 1}, snap.FailuresByStage)
	assert.Equal(t, int64(40000), snap.AvgDurationMs)
	assert.Equal(t, "1", snap.LatestCompleteID)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	now := time.Now().UTC()
	runs := &mockRuns{runs: []model.Run{
		{ID: "1", Status: model.RunStatusRunning, CreatedAt: now.Add(-1 * time.Hour)},
	}}

	snap, err := fixedCollector(runs, now).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.RunFailRate)
	assert.Empty(t, snap.LatestCompleteID)
}

func TestCollector_ListError(t *testing.T) {
	c := NewCollector(&mockRuns{listErr: errors.New("db down")})

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

func TestCollector_WithSQLiteStore(t *testing.T) {
	st, err := store.NewSQLite(t.TempDir() + "/runs.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, 2024)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, &model.RunResult{Companies: 3, Metrics: 141, Duration: 900}))

	snap, err := NewCollector(st).Collect(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 141, snap.Metrics)
	assert.Equal(t, run.ID, snap.LatestCompleteID)
}
