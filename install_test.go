package lib

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tillpoint/pos-lib/conflict"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue"
	sqmodel "github.com/tillpoint/pos-lib/syncqueue/model"
)

func TestInstallAllCreatesEveryTable(t *testing.T) {
	db, err := sql.NewSQLiteConn(&sql.ConnParam{
		Path:        filepath.Join(t.TempDir(), "pos.db"),
		BusyTimeout: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, InstallAll(db))

	// Every package's tables are queryable
	for _, table := range []string{
		"pos_sync_queue", "pos_sync_conflict", "pos_sync_run",
		"pos_order_cache", "pos_product_cache", "pos_category_cache",
		"pos_held_order",
	} {
		_, err := db.Exec("SELECT count(*) FROM " + table)
		require.NoError(t, err, table)
	}

	// And the queue is usable right away
	id, err := syncqueue.Enqueue(db, &syncqueue.EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  sqmodel.SyncQueueOperationCreate,
		Payload:    []byte(`{"total":100}`),
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	count, err := conflict.PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Running again is a no-op
	require.NoError(t, InstallAll(db))
}
