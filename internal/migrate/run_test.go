package migrate

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/aad-connect/internal/testutil"
)

func testSource() fstest.MapFS {
	return fstest.MapFS{
		"0002_blocked_index.sql": {Data: []byte("CREATE INDEX users_blocked_idx ON users (blocked);")},
		"0001_init.sql":          {Data: []byte("CREATE TABLE users (id UUID PRIMARY KEY);")},
		"README.md":              {Data: []byte("not a migration")},
	}
}

func TestList_OrdersSQLFiles(t *testing.T) {
	got, err := List(testSource())
	require.NoError(t, err)
	assert.Equal(t, []Migration{
		{Version: "0001_init", File: "0001_init.sql"},
		{Version: "0002_blocked_index", File: "0002_blocked_index.sql"},
	}, got)
}

func TestList_Embedded(t *testing.T) {
	src, err := Options{}.source()
	require.NoError(t, err)
	got, err := List(src)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "0001_init", got[0].Version)
}

func TestRun_AppliesPendingOnly(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS aad_connect_schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM aad_connect_schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_init"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE INDEX users_blocked_idx`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO aad_connect_schema_migrations`).
		WithArgs("0002_blocked_index").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	logger, logs := testutil.NewLogger()
	applied, err := Run(context.Background(), db, Options{Logger: logger, Source: testSource()})
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_blocked_index"}, applied)

	rec, ok := logs.Find("applying migration")
	require.True(t, ok)
	assert.Equal(t, "0002_blocked_index", rec["version"])
	assert.Equal(t, "migrations", rec["component"])
}

func TestRun_NothingPending(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_init").AddRow("0002_blocked_index"))

	applied, err := Run(context.Background(), db, Options{Source: testSource()})
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRun_FailedMigrationRollsBack(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM`).WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE users`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := Run(context.Background(), db, Options{Source: testSource()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 0001_init")
	assert.Contains(t, err.Error(), "syntax error")
	assert.Empty(t, applied)
}

func TestRun_VersionTableError(t *testing.T) {
	db, mock := testutil.SetupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnError(errors.New("permission denied"))

	_, err := Run(context.Background(), db, Options{Source: testSource()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create aad_connect_schema_migrations")
}
