package sql

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) (db *Connection) {
	t.Helper()

	db, err := NewSQLiteConn(&ConnParam{
		Path:        filepath.Join(t.TempDir(), "pos.db"),
		BusyTimeout: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = db.Exec(`CREATE TABLE widget (
		widget_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		qty INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)

	return db
}

func widgetCount(t *testing.T, db *Connection) (count int) {
	t.Helper()

	count, err := db.QueryCount(db.Select("count(widget_id)").From("widget"))
	require.NoError(t, err)

	return count
}

func TestNowIsParseableUTC(t *testing.T) {
	ts, err := time.Parse(DateTimeFormat, Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
}

func TestBulkInsertFlushesRemainder(t *testing.T) {
	db := newTestConn(t)

	bi, err := NewBulkInsert(db, "widget", "name, qty", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := bi.Add("w", i)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, widgetCount(t, db))

	require.NoError(t, bi.Flush())
	assert.Equal(t, 5, widgetCount(t, db))
	assert.Equal(t, 5, bi.GetTotal())
}

func TestBulkInsertExecsWhenParamLimitReached(t *testing.T) {
	db := newTestConn(t)

	bi, err := NewBulkInsert(db, "widget", "name, qty", "")
	require.NoError(t, err)
	bi.SetMaxParamPerInsert(4)

	// Third add crosses the 4 param cap and executes the batch
	inserted := 0
	for i := 0; i < 3; i++ {
		n, err := bi.Add("w", i)
		require.NoError(t, err)
		inserted += n
	}
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 3, widgetCount(t, db))
}

func TestBulkInsertRejectsColumnMismatch(t *testing.T) {
	db := newTestConn(t)

	bi, err := NewBulkInsert(db, "widget", "name, qty", "")
	require.NoError(t, err)

	_, err = bi.Add("only-one-value")
	require.Error(t, err)
}

func TestBeginRejectsNestedTxn(t *testing.T) {
	db := newTestConn(t)

	require.NoError(t, db.Begin())
	defer db.RollbackIfInTxn()

	err := db.Begin()
	require.Error(t, err)
}

func TestTxnRollbackDiscardsWrites(t *testing.T) {
	db := newTestConn(t)

	require.NoError(t, db.Begin())
	require.NoError(t, db.ExecInsert(
		db.Insert("widget").Columns("name", "qty").Values("w", 1)))
	db.Rollback()

	assert.Equal(t, 0, widgetCount(t, db))
}

func TestExecInsertReturningID(t *testing.T) {
	db := newTestConn(t)

	id, err := db.ExecInsertReturningID(db.Insert("widget").
		Columns("name", "qty").
		Values("w", 1).
		Suffix("RETURNING widget_id"))
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}
