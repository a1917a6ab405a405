package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/edgar-metrics/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	fy         INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS companies (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	cik             TEXT NOT NULL,
	symbol          TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL DEFAULT '',
	sic             TEXT NOT NULL DEFAULT '',
	sic_description TEXT NOT NULL DEFAULT '',
	sector          TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	fye             TEXT NOT NULL DEFAULT '',
	ifrs            INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, cik)
);

CREATE TABLE IF NOT EXISTS resolved_metrics (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	cik            TEXT NOT NULL,
	fy             INTEGER NOT NULL,
	metric         TEXT NOT NULL,
	value          REAL,
	unit           TEXT NOT NULL DEFAULT '',
	period_type    TEXT NOT NULL DEFAULT '',
	end_date       DATE,
	form           TEXT NOT NULL DEFAULT '',
	accn           TEXT NOT NULL DEFAULT '',
	source_type    TEXT NOT NULL,
	selected_tag   TEXT NOT NULL DEFAULT '',
	composite_name TEXT NOT NULL DEFAULT '',
	computed_from  TEXT NOT NULL DEFAULT '',
	confidence     REAL NOT NULL DEFAULT 0,
	reason         TEXT NOT NULL DEFAULT '',
	is_derived     INTEGER NOT NULL DEFAULT 0,
	components     TEXT NOT NULL DEFAULT '[]',
	position       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, cik, fy, metric)
);

CREATE TABLE IF NOT EXISTS benchmarks (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	fy          INTEGER NOT NULL,
	metric      TEXT NOT NULL,
	sector      TEXT NOT NULL DEFAULT '',
	industry    TEXT NOT NULL DEFAULT '',
	mean        REAL NOT NULL,
	median      REAL NOT NULL,
	max         REAL NOT NULL,
	min         REAL NOT NULL,
	p25         REAL NOT NULL,
	p75         REAL NOT NULL,
	sample_size INTEGER NOT NULL,
	PRIMARY KEY (run_id, fy, metric, sector, industry)
);

CREATE TABLE IF NOT EXISTS rankings (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	fy              INTEGER NOT NULL,
	metric          TEXT NOT NULL,
	ranking_type    TEXT NOT NULL,
	sector          TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	rank            INTEGER NOT NULL,
	cik             TEXT NOT NULL,
	symbol          TEXT NOT NULL DEFAULT '',
	value           REAL,
	composite_score REAL,
	PRIMARY KEY (run_id, fy, metric, ranking_type, sector, industry, cik)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_fy_created ON runs(fy, created_at);
CREATE INDEX IF NOT EXISTS idx_resolved_metrics_cik_fy ON resolved_metrics(cik, fy);
CREATE INDEX IF NOT EXISTS idx_benchmarks_fy_metric ON benchmarks(fy, metric);
CREATE INDEX IF NOT EXISTS idx_rankings_fy_metric ON rankings(fy, metric);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, fy int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, fy, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, fy, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		FY:        fy,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, result)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, result *model.RunResult) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, result)
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	var resultJSON any
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal result")
		}
		resultJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		string(status), resultJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fy, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanSQLiteRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, fy, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.FY > 0 {
		query += ` AND fy = ?`
		args = append(args, filter.FY)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveCompanies(ctx context.Context, runID string, companies []model.CompanyContext) error {
	rows := make([][]any, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, companyRow(runID, c))
	}
	return s.replaceRows(ctx, "companies", companyColumns, rows)
}

func (s *SQLiteStore) SaveMetrics(ctx context.Context, runID string, results []model.CompanyResult) error {
	rows, err := metricRows(runID, results)
	if err != nil {
		return err
	}
	return s.replaceRows(ctx, "resolved_metrics", metricColumns, rows)
}

func (s *SQLiteStore) SaveBenchmarks(ctx context.Context, runID string, records []model.BenchmarkRecord) error {
	rows := make([][]any, 0, len(records))
	for _, b := range records {
		rows = append(rows, benchmarkRow(runID, b))
	}
	return s.replaceRows(ctx, "benchmarks", benchmarkColumns, rows)
}

func (s *SQLiteStore) SaveRankings(ctx context.Context, runID string, records []model.RankingRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, rankingRow(runID, r))
	}
	return s.replaceRows(ctx, "rankings", rankingColumns, rows)
}

// replaceRows writes rows in one transaction through a prepared
// INSERT OR REPLACE.
func (s *SQLiteStore) replaceRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", table)
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders,
	))
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", table)
}

// latestRun returns the newest complete run, restricted to fy when set.
// An empty id with a nil error means no run qualifies.
func (s *SQLiteStore) latestRun(ctx context.Context, runID string, fy int) (string, error) {
	if runID != "" {
		return runID, nil
	}
	query := `SELECT id FROM runs WHERE status = ?`
	args := []any{string(model.RunStatusComplete)}
	if fy > 0 {
		query += ` AND fy = ?`
		args = append(args, fy)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, eris.Wrap(err, "sqlite: latest run")
}

func (s *SQLiteStore) ListBenchmarks(ctx context.Context, filter BenchmarkFilter) ([]model.BenchmarkRecord, error) {
	runID, err := s.latestRun(ctx, filter.RunID, filter.FY)
	if err != nil || runID == "" {
		return nil, err
	}

	query := `SELECT ` + benchmarkSelect + ` FROM benchmarks WHERE run_id = ?`
	args := []any{runID}
	if filter.FY > 0 {
		query += ` AND fy = ?`
		args = append(args, filter.FY)
	}
	if filter.Metric != "" {
		query += ` AND metric = ?`
		args = append(args, filter.Metric)
	}
	if filter.Industry != "" {
		query += ` AND industry = ?`
		args = append(args, filter.Industry)
	}
	query += ` ORDER BY metric, sector, industry`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list benchmarks")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BenchmarkRecord
	for rows.Next() {
		b, err := scanBenchmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list benchmarks iterate")
}

func (s *SQLiteStore) ListRankings(ctx context.Context, filter RankingFilter) ([]model.RankingRecord, error) {
	runID, err := s.latestRun(ctx, filter.RunID, filter.FY)
	if err != nil || runID == "" {
		return nil, err
	}

	query := `SELECT ` + rankingSelect + ` FROM rankings WHERE run_id = ?`
	args := []any{runID}
	if filter.FY > 0 {
		query += ` AND fy = ?`
		args = append(args, filter.FY)
	}
	if filter.Metric != "" {
		query += ` AND metric = ?`
		args = append(args, filter.Metric)
	}
	if filter.Type != "" {
		query += ` AND ranking_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Industry != "" {
		query += ` AND industry = ?`
		args = append(args, filter.Industry)
	}
	query += ` ORDER BY metric, ranking_type, sector, industry, rank`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rankings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RankingRecord
	for rows.Next() {
		r, err := scanRanking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rankings iterate")
}

// CompanyMetrics returns the metrics stored for cik by its most recent run.
// fy 0 matches any fiscal year.
func (s *SQLiteStore) CompanyMetrics(ctx context.Context, cik string, fy int) ([]model.ResolvedMetric, error) {
	query := `SELECT m.run_id, m.fy FROM resolved_metrics m JOIN runs r ON r.id = m.run_id WHERE m.cik = ?`
	args := []any{cik}
	if fy > 0 {
		query += ` AND m.fy = ?`
		args = append(args, fy)
	}
	query += ` ORDER BY r.created_at DESC LIMIT 1`

	var (
		runID   string
		foundFY int
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&runID, &foundFY)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest metrics run for %s", cik)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metricSelect+` FROM resolved_metrics WHERE run_id = ? AND cik = ? AND fy = ? ORDER BY position`,
		runID, cik, foundFY,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: company metrics %s", cik)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ResolvedMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: company metrics iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var (
		r          model.Run
		status     string
		resultJSON sql.NullString
	)
	err := row.Scan(&r.ID, &r.FY, &status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)

	if resultJSON.Valid {
		res, err := decodeResult([]byte(resultJSON.String))
		if err != nil {
			return nil, err
		}
		r.Result = res
	}
	return &r, nil
}
