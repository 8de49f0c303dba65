package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"schooladmin/internal/db"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var sqliteSeq atomic.Int64

// NewSQLite opens a private in-memory database and creates tables for models.
// The database is closed when the test finishes.
//
// The pool is limited to one connection, so code under test must run every
// statement of a transaction on the transaction itself.
func NewSQLite(t *testing.T, models ...interface{}) *bun.DB {
	t.Helper()

	bunDB := OpenSQLite(t)
	if len(models) > 0 {
		require.NoError(t, db.RunMigrations(context.Background(), bunDB, models...))
	}
	return bunDB
}

// OpenSQLite opens an empty in-memory database closed at test cleanup.
func OpenSQLite(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", sqliteSeq.Add(1))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}
