package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/db"
	"github.com/sells-group/edgar-metrics/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Schema holds every table the Postgres store owns.
const Schema = "edgar"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, Migrations(), Schema), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, fy int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO edgar.runs (id, fy, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, fy, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		FY:        fy,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, result)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, result *model.RunResult) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, result)
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	var resultJSON []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal result")
		}
		resultJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE edgar.runs SET status = $1, result = $2, updated_at = $3 WHERE id = $4`,
		string(status), resultJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, fy, status, result, created_at, updated_at FROM edgar.runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	q := newQuery(`SELECT id, fy, status, result, created_at, updated_at FROM edgar.runs WHERE true`)
	if filter.Status != "" {
		q.where("status", string(filter.Status))
	}
	if filter.FY > 0 {
		q.where("fy", filter.FY)
	}
	if !filter.CreatedAfter.IsZero() {
		q.sql += " AND created_at >= " + q.arg(filter.CreatedAfter.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q.sql += ` ORDER BY created_at DESC LIMIT ` + q.arg(limit)
	if filter.Offset > 0 {
		q.sql += ` OFFSET ` + q.arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveCompanies(ctx context.Context, runID string, companies []model.CompanyContext) error {
	rows := make([][]any, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, companyRow(runID, c))
	}
	return s.upsert(ctx, "companies", companyColumns, companyKeys, rows)
}

func (s *PostgresStore) SaveMetrics(ctx context.Context, runID string, results []model.CompanyResult) error {
	rows, err := metricRows(runID, results)
	if err != nil {
		return err
	}
	return s.upsert(ctx, "resolved_metrics", metricColumns, metricKeys, rows)
}

func (s *PostgresStore) SaveBenchmarks(ctx context.Context, runID string, records []model.BenchmarkRecord) error {
	rows := make([][]any, 0, len(records))
	for _, b := range records {
		rows = append(rows, benchmarkRow(runID, b))
	}
	return s.upsert(ctx, "benchmarks", benchmarkColumns, benchmarkKeys, rows)
}

func (s *PostgresStore) SaveRankings(ctx context.Context, runID string, records []model.RankingRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, rankingRow(runID, r))
	}
	return s.upsert(ctx, "rankings", rankingColumns, rankingKeys, rows)
}

func (s *PostgresStore) upsert(ctx context.Context, table string, columns, keys []string, rows [][]any) error {
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        Schema + "." + table,
		Columns:      columns,
		ConflictKeys: keys,
	}, rows)
	return eris.Wrapf(err, "postgres: save %s", table)
}

func (s *PostgresStore) latestRun(ctx context.Context, runID string, fy int) (string, error) {
	if runID != "" {
		return runID, nil
	}
	q := newQuery(`SELECT id FROM edgar.runs WHERE true`)
	q.where("status", string(model.RunStatusComplete))
	if fy > 0 {
		q.where("fy", fy)
	}
	q.sql += ` ORDER BY created_at DESC LIMIT 1`

	var id string
	err := s.pool.QueryRow(ctx, q.sql, q.args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, eris.Wrap(err, "postgres: latest run")
}

func (s *PostgresStore) ListBenchmarks(ctx context.Context, filter BenchmarkFilter) ([]model.BenchmarkRecord, error) {
	runID, err := s.latestRun(ctx, filter.RunID, filter.FY)
	if err != nil || runID == "" {
		return nil, err
	}

	q := newQuery(`SELECT ` + benchmarkSelect + ` FROM edgar.benchmarks WHERE true`)
	q.where("run_id", runID)
	if filter.FY > 0 {
		q.where("fy", filter.FY)
	}
	if filter.Metric != "" {
		q.where("metric", filter.Metric)
	}
	if filter.Industry != "" {
		q.where("industry", filter.Industry)
	}
	q.sql += ` ORDER BY metric, sector, industry`

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list benchmarks")
	}
	defer rows.Close()

	var out []model.BenchmarkRecord
	for rows.Next() {
		b, err := scanBenchmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list benchmarks iterate")
}

func (s *PostgresStore) ListRankings(ctx context.Context, filter RankingFilter) ([]model.RankingRecord, error) {
	runID, err := s.latestRun(ctx, filter.RunID, filter.FY)
	if err != nil || runID == "" {
		return nil, err
	}

	q := newQuery(`SELECT ` + rankingSelect + ` FROM edgar.rankings WHERE true`)
	q.where("run_id", runID)
	if filter.FY > 0 {
		q.where("fy", filter.FY)
	}
	if filter.Metric != "" {
		q.where("metric", filter.Metric)
	}
	if filter.Type != "" {
		q.where("ranking_type", string(filter.Type))
	}
	if filter.Industry != "" {
		q.where("industry", filter.Industry)
	}
	q.sql += ` ORDER BY metric, ranking_type, sector, industry, rank`

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rankings")
	}
	defer rows.Close()

	var out []model.RankingRecord
	for rows.Next() {
		r, err := scanRanking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rankings iterate")
}

func (s *PostgresStore) CompanyMetrics(ctx context.Context, cik string, fy int) ([]model.ResolvedMetric, error) {
	q := newQuery(`SELECT m.run_id, m.fy FROM edgar.resolved_metrics m JOIN edgar.runs r ON r.id = m.run_id WHERE true`)
	q.where("m.cik", cik)
	if fy > 0 {
		q.where("m.fy", fy)
	}
	q.sql += ` ORDER BY r.created_at DESC LIMIT 1`

	var (
		runID   string
		foundFY int
	)
	err := s.pool.QueryRow(ctx, q.sql, q.args...).Scan(&runID, &foundFY)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest metrics run for %s", cik)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+metricSelect+` FROM edgar.resolved_metrics WHERE run_id = $1 AND cik = $2 AND fy = $3 ORDER BY position`,
		runID, cik, foundFY,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: company metrics %s", cik)
	}
	defer rows.Close()

	var out []model.ResolvedMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: company metrics iterate")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var (
		r          model.Run
		status     string
		resultJSON []byte
	)
	if err := row.Scan(&r.ID, &r.FY, &status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	res, err := decodeResult(resultJSON)
	if err != nil {
		return nil, err
	}
	r.Result = res
	return &r, nil
}

// query accumulates positional arguments for a dynamically filtered SELECT.
type query struct {
	sql  string
	args []any
}

func newQuery(base string) *query {
	return &query{sql: base}
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *query) where(column string, v any) {
	q.sql += " AND " + column + " = " + q.arg(v)
}
