package conflict

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tillpoint/pos-lib/conflict/model"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/migration"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue"
	sqmodel "github.com/tillpoint/pos-lib/syncqueue/model"
)

func newTestDB(t *testing.T) (db *sql.Connection) {
	t.Helper()

	db, err := sql.NewSQLiteConn(&sql.ConnParam{
		Path:        filepath.Join(t.TempDir(), "pos.db"),
		BusyTimeout: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	m, err := migration.NewMigrator(db)
	require.NoError(t, err)
	require.NoError(t, m.AddMigrationList(syncqueue.GetMigrationList()))
	require.NoError(t, m.AddMigrationList(GetMigrationList()))
	require.NoError(t, m.Upgrade())

	return db
}

func enqueueSyncing(t *testing.T, db *sql.Connection, entityID string) (id int) {
	t.Helper()

	id, err := syncqueue.Enqueue(db, &syncqueue.EnqueueParam{
		EntityType:    "order",
		EntityID:      entityID,
		Operation:     sqmodel.SyncQueueOperationUpdate,
		Payload:       []byte(`{"total":100}`),
		ClientVersion: 1,
	})
	require.NoError(t, err)
	require.NoError(t, syncqueue.MarkSyncing(db, id))

	return id
}

func TestCreateParksQueueItem(t *testing.T) {
	db := newTestDB(t)
	qID := enqueueSyncing(t, db, "o1")

	cID, err := Create(db, &CreateParam{
		QueueItemID:   qID,
		EntityType:    "order",
		EntityID:      "o1",
		LocalData:     []byte(`{"total":100}`),
		ServerData:    []byte(`{"total":900}`),
		ServerVersion: 7,
		ConflictType:  model.ConflictTypeVersionMismatch,
	})
	require.NoError(t, err)
	require.NotEmpty(t, cID)

	item, err := syncqueue.GetByID(db, qID)
	require.NoError(t, err)
	assert.Equal(t, sqmodel.SyncQueueStatusConflict, item.Status)
	assert.Equal(t, cID, item.ConflictID)

	sc, err := Get(db, cID)
	require.NoError(t, err)
	assert.Equal(t, model.ConflictTypeVersionMismatch, sc.ConflictType)
	assert.Equal(t, 7, sc.ServerVersion)
	assert.False(t, sc.Resolved())

	count, err := PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResolveKeepLocalRequeuesWrite(t *testing.T) {
	db := newTestDB(t)
	qID := enqueueSyncing(t, db, "o1")

	cID, err := Create(db, &CreateParam{
		QueueItemID:   qID,
		EntityType:    "order",
		EntityID:      "o1",
		LocalData:     []byte(`{"total":100}`),
		ServerData:    []byte(`{"total":900}`),
		ServerVersion: 7,
		ConflictType:  model.ConflictTypeVersionMismatch,
	})
	require.NoError(t, err)

	require.NoError(t, Resolve(db, cID, model.ResolutionKeepLocal, nil))

	// The local payload goes back to pending, based on the server's
	// version so the retry overrides it
	item, err := syncqueue.GetByID(db, qID)
	require.NoError(t, err)
	assert.Equal(t, sqmodel.SyncQueueStatusPending, item.Status)
	assert.Equal(t, []byte(`{"total":100}`), item.Payload)
	assert.Equal(t, 7, item.ClientVersion)
	assert.Equal(t, 0, item.Attempts)

	sc, err := Get(db, cID)
	require.NoError(t, err)
	assert.True(t, sc.Resolved())
	assert.Equal(t, model.ResolutionKeepLocal, sc.Resolution)
}

func TestResolveKeepServerCompletesWithoutSync(t *testing.T) {
	db := newTestDB(t)
	qID := enqueueSyncing(t, db, "o1")

	cID, err := Create(db, &CreateParam{
		QueueItemID:   qID,
		EntityType:    "order",
		EntityID:      "o1",
		LocalData:     []byte(`{"total":100}`),
		ServerData:    []byte(`{"total":900}`),
		ServerVersion: 7,
		ConflictType:  model.ConflictTypeConcurrentUpdate,
	})
	require.NoError(t, err)

	require.NoError(t, Resolve(db, cID, model.ResolutionKeepServer, nil))

	item, err := syncqueue.GetByID(db, qID)
	require.NoError(t, err)
	assert.Equal(t, sqmodel.SyncQueueStatusSynced, item.Status)

	count, err := syncqueue.PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestResolveManualMergeUsesCallerPayload(t *testing.T) {
	db := newTestDB(t)
	qID := enqueueSyncing(t, db, "o1")

	cID, err := Create(db, &CreateParam{
		QueueItemID:   qID,
		EntityType:    "order",
		EntityID:      "o1",
		LocalData:     []byte(`{"total":100}`),
		ServerData:    []byte(`{"total":900}`),
		ServerVersion: 7,
		ConflictType:  model.ConflictTypeVersionMismatch,
	})
	require.NoError(t, err)

	merged := []byte(`{"total":500}`)
	require.NoError(t, Resolve(db, cID, model.ResolutionManualMerge, merged))

	item, err := syncqueue.GetByID(db, qID)
	require.NoError(t, err)
	assert.Equal(t, sqmodel.SyncQueueStatusPending, item.Status)
	assert.Equal(t, merged, item.Payload)
}

func TestResolveTwiceFails(t *testing.T) {
	db := newTestDB(t)
	qID := enqueueSyncing(t, db, "o1")

	cID, err := Create(db, &CreateParam{
		QueueItemID:  qID,
		EntityType:   "order",
		EntityID:     "o1",
		LocalData:    []byte(`{}`),
		ConflictType: model.ConflictTypeDeletedOnServer,
	})
	require.NoError(t, err)

	require.NoError(t, Resolve(db, cID, model.ResolutionKeepServer, nil))

	err = Resolve(db, cID, model.ResolutionKeepLocal, nil)
	require.Error(t, err)
	assert.True(t, e.ContainsError(err, e.MsgConflictAlreadyResolved))
}

func TestDismissSettlesWithoutTouchingQueue(t *testing.T) {
	db := newTestDB(t)
	qID := enqueueSyncing(t, db, "o1")

	cID, err := Create(db, &CreateParam{
		QueueItemID:  qID,
		EntityType:   "order",
		EntityID:     "o1",
		LocalData:    []byte(`{}`),
		ConflictType: model.ConflictTypeDeletedOnServer,
	})
	require.NoError(t, err)

	require.NoError(t, Dismiss(db, cID))

	sc, err := Get(db, cID)
	require.NoError(t, err)
	assert.True(t, sc.Resolved())
	assert.Equal(t, model.ResolutionDismissed, sc.Resolution)

	// The queue item stays parked
	item, err := syncqueue.GetByID(db, qID)
	require.NoError(t, err)
	assert.Equal(t, sqmodel.SyncQueueStatusConflict, item.Status)

	count, err := PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListPendingExcludesResolved(t *testing.T) {
	db := newTestDB(t)

	q1 := enqueueSyncing(t, db, "o1")
	c1, err := Create(db, &CreateParam{
		QueueItemID:  q1,
		EntityType:   "order",
		EntityID:     "o1",
		LocalData:    []byte(`{}`),
		ConflictType: model.ConflictTypeVersionMismatch,
	})
	require.NoError(t, err)

	q2 := enqueueSyncing(t, db, "o2")
	c2, err := Create(db, &CreateParam{
		QueueItemID:  q2,
		EntityType:   "order",
		EntityID:     "o2",
		LocalData:    []byte(`{}`),
		ConflictType: model.ConflictTypeVersionMismatch,
	})
	require.NoError(t, err)

	require.NoError(t, Resolve(db, c1, model.ResolutionKeepServer, nil))

	scList, err := ListPending(db)
	require.NoError(t, err)
	require.Len(t, scList, 1)
	assert.Equal(t, c2, scList[0].ID)
}

func TestCreateRecordsServerDeletion(t *testing.T) {
	db := newTestDB(t)
	qID := enqueueSyncing(t, db, "o1")

	// The record vanished server side, there is no server data to keep
	cID, err := Create(db, &CreateParam{
		QueueItemID:  qID,
		EntityType:   "order",
		EntityID:     "o1",
		LocalData:    []byte(`{"total":100}`),
		ConflictType: model.ConflictTypeDeletedOnServer,
	})
	require.NoError(t, err)

	sc, err := Get(db, cID)
	require.NoError(t, err)
	assert.Equal(t, model.ConflictTypeDeletedOnServer, sc.ConflictType)
	assert.Empty(t, sc.ServerData)
	assert.Equal(t, 0, sc.ServerVersion)

	item, err := syncqueue.GetByID(db, qID)
	require.NoError(t, err)
	assert.Equal(t, sqmodel.SyncQueueStatusConflict, item.Status)
}

func TestResolveKeepLocalAfterServerDeleteRequeuesCreate(t *testing.T) {
	db := newTestDB(t)
	qID := enqueueSyncing(t, db, "o1")

	cID, err := Create(db, &CreateParam{
		QueueItemID:  qID,
		EntityType:   "order",
		EntityID:     "o1",
		LocalData:    []byte(`{"total":100}`),
		ConflictType: model.ConflictTypeDeletedOnServer,
	})
	require.NoError(t, err)

	require.NoError(t, Resolve(db, cID, model.ResolutionKeepLocal, nil))

	// The retried write recreates the record instead of updating a record
	// the server no longer has
	item, err := syncqueue.GetByID(db, qID)
	require.NoError(t, err)
	assert.Equal(t, sqmodel.SyncQueueStatusPending, item.Status)
	assert.Equal(t, sqmodel.SyncQueueOperationCreate, item.Operation)
	assert.Equal(t, 0, item.ClientVersion)
}
