package migrate

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetrack.io/ops/migrations"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- header; with a semicolon
create table a (id text);
insert into a values ('x;y'), ('it''s');
select 1`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 3)
	assert.NotContains(t, stmts[0], "header")
	assert.Contains(t, stmts[0], "create table a")
	assert.Contains(t, stmts[1], "'x;y'")
	assert.Contains(t, stmts[1], "'it''s'")
	assert.Equal(t, "select 1", strings.TrimSpace(stmts[2]))
}

func TestEmbeddedMigrationsSplit(t *testing.T) {
	raw, err := migrations.FS.ReadFile("sql/0001_init.up.sql")
	require.NoError(t, err)
	var tables int
	for _, stmt := range splitStatements(string(raw)) {
		if strings.Contains(stmt, "create table") {
			tables++
		}
	}
	assert.Equal(t, 7, tables)

	_, err = migrations.FS.ReadFile("sql/0001_init.down.sql")
	require.NoError(t, err)
}

func expectTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	files := fstest.MapFS{
		"sql/0002_b.up.sql":   {Data: []byte("create table b (id text);")},
		"sql/0001_a.up.sql":   {Data: []byte("create table a (id text);")},
		"sql/0001_a.down.sql": {Data: []byte("drop table a;")},
	}

	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_b.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewManager(db, files, "sql", "seeds").Up(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	files := fstest.MapFS{
		"sql/0001_a.up.sql":   {Data: []byte("create table a (id text);")},
		"sql/0001_a.down.sql": {Data: []byte("drop table a;")},
	}

	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("delete from schema_migrations").WithArgs("0001_a.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewManager(db, files, "sql", "seeds").Down(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	err = NewManager(db, fstest.MapFS{}, "sql", "seeds").Down(context.Background())
	assert.ErrorIs(t, err, ErrNothingApplied)
}

func TestSeedMissingDirIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTables(mock)
	mock.ExpectQuery("select name from schema_seeds").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	require.NoError(t, NewManager(db, fstest.MapFS{}, "sql", "seeds").Seed(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
