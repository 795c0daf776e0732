package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMigrations = fstest.MapFS{
	"000002_add_reviews_index.up.sql": {Data: []byte("CREATE INDEX idx ON reviews (item_id);")},
	"000001_create_reviews.up.sql":    {Data: []byte("CREATE TABLE reviews (id TEXT PRIMARY KEY);")},
	"000001_create_reviews.down.sql":  {Data: []byte("DROP TABLE reviews;")},
	"README.md":                       {Data: []byte("not a migration")},
}

func expectSchemaTable(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func expectLockAndCheck(mock pgxmock.PgxPoolIface, name string, applied bool) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)")).
		WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(applied))
}

func TestUpMigrations_SortsAndFilters(t *testing.T) {
	files, err := upMigrations(testMigrations)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_reviews.up.sql", "000002_add_reviews_index.up.sql"}, files)
}

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSchemaTable(mock)

	expectLockAndCheck(mock, "000001_create_reviews.up.sql", true)
	mock.ExpectRollback()

	expectLockAndCheck(mock, "000002_add_reviews_index.up.sql", false)
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX idx ON reviews (item_id);")).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES ($1)")).
		WithArgs("000002_add_reviews_index.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = RunMigrations(context.Background(), mock, testMigrations, newTestLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorIsNotRetried(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	only := fstest.MapFS{"000001_create_reviews.up.sql": testMigrations["000001_create_reviews.up.sql"]}

	expectSchemaTable(mock)
	expectLockAndCheck(mock, "000001_create_reviews.up.sql", false)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE reviews")).
		WillReturnError(&pgconn.PgError{Code: "42601", Message: "syntax error"})
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, only, newTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 000001_create_reviews.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
