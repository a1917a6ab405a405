package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "edgar.companies",
		Columns:      []string{"cik", "name"},
		ConflictKeys: []string{"cik"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "edgar.companies",
		ConflictKeys: []string{"cik"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "edgar.companies",
		Columns: []string{"cik", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_tmp_upsert_edgar_companies" (LIKE "edgar"."companies" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_edgar_companies"}, []string{"run_id", "cik", "name"}).
		WillReturnResult(3)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "_tmp_upsert_edgar_companies" a USING "_tmp_upsert_edgar_companies" b WHERE a.ctid < b.ctid AND a."run_id" = b."run_id" AND a."cik" = b."cik"`)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "edgar"."companies" ("run_id", "cik", "name") SELECT "run_id", "cik", "name" FROM "_tmp_upsert_edgar_companies" ON CONFLICT ("run_id", "cik") DO UPDATE SET "name" = EXCLUDED."name"`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "edgar.companies",
		Columns:      []string{"run_id", "cik", "name"},
		ConflictKeys: []string{"run_id", "cik"},
	}, [][]any{{"r", "1", "a"}, {"r", "1", "b"}, {"r", "2", "c"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_DoNothingWhenAllColumnsAreKeys(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_tags"}, []string{"tag"}).WillReturnResult(1)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("tag") DO NOTHING`)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "tags",
		Columns:      []string{"tag"},
		ConflictKeys: []string{"tag"},
	}, [][]any{{"Revenues"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_edgar_companies"}, []string{"cik"}).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "edgar.companies",
		Columns:      []string{"cik"},
		ConflictKeys: []string{"cik"},
	}, [][]any{{"1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for edgar.companies")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"edgar.resolved_metrics", `"edgar"."resolved_metrics"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"cik", "metric", "fiscal_year"`, quoteAndJoin([]string{"cik", "metric", "fiscal_year"}))
}

func TestTempTableName(t *testing.T) {
	assert.Equal(t, "_tmp_upsert_edgar_benchmarks", TempTableName("edgar.benchmarks"))
}
