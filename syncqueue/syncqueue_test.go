package syncqueue

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/migration"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue/model"
	"github.com/tillpoint/pos-lib/syncqueue/sqlmodel"
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
	require.NoError(t, m.AddMigrationList(GetMigrationList()))
	require.NoError(t, m.Upgrade())

	return db
}

func TestEnqueueCoalescesActiveRow(t *testing.T) {
	db := newTestDB(t)

	id1, err := Enqueue(db, &EnqueueParam{
		EntityType:    "order",
		EntityID:      "o1",
		Operation:     model.SyncQueueOperationUpdate,
		Payload:       []byte(`{"total":100}`),
		ClientVersion: 3,
	})
	require.NoError(t, err)

	id2, err := Enqueue(db, &EnqueueParam{
		EntityType:    "order",
		EntityID:      "o1",
		Operation:     model.SyncQueueOperationUpdate,
		Payload:       []byte(`{"total":250}`),
		ClientVersion: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	item, err := GetByID(db, id1)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"total":250}`), item.Payload)
	assert.Equal(t, HashPayload([]byte(`{"total":250}`)), item.PayloadHash)
	// The base version must survive coalescing, the remote write is still
	// based on the same server version
	assert.Equal(t, 3, item.ClientVersion)

	count, err := PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEnqueueMergesCreateAndUpdate(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "product",
		EntityID:   "p1",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{"name":"a"}`),
	})
	require.NoError(t, err)

	_, err = Enqueue(db, &EnqueueParam{
		EntityType: "product",
		EntityID:   "p1",
		Operation:  model.SyncQueueOperationUpdate,
		Payload:    []byte(`{"name":"b"}`),
	})
	require.NoError(t, err)

	item, err := GetByID(db, id)
	require.NoError(t, err)
	// The server never saw the create, so the merged row is still a create
	assert.Equal(t, model.SyncQueueOperationCreate, item.Operation)
	assert.Equal(t, []byte(`{"name":"b"}`), item.Payload)
}

func TestEnqueueDeleteCancelsPendingCreate(t *testing.T) {
	db := newTestDB(t)

	_, err := Enqueue(db, &EnqueueParam{
		EntityType: "product",
		EntityID:   "p1",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{"name":"a"}`),
	})
	require.NoError(t, err)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "product",
		EntityID:   "p1",
		Operation:  model.SyncQueueOperationDelete,
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	count, err := PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestNextBatchOrdersByPriorityThenAge(t *testing.T) {
	db := newTestDB(t)

	idA, err := Enqueue(db, &EnqueueParam{
		EntityType: "product",
		EntityID:   "a",
		Operation:  model.SyncQueueOperationUpdate,
		Payload:    []byte(`{}`),
		Priority:   1,
	})
	require.NoError(t, err)

	idB, err := Enqueue(db, &EnqueueParam{
		EntityType: "product",
		EntityID:   "b",
		Operation:  model.SyncQueueOperationUpdate,
		Payload:    []byte(`{}`),
		Priority:   1,
	})
	require.NoError(t, err)

	idC, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "c",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{}`),
		Priority:   0,
	})
	require.NoError(t, err)

	batch, err := NextBatch(db, 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, idC, batch[0].ID)
	assert.Equal(t, idA, batch[1].ID)
	assert.Equal(t, idB, batch[2].ID)
}

func TestNextBatchSkipsBackedOffItems(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)

	// First failure: a fresh attempt timestamp puts the item inside its
	// backoff window
	require.NoError(t, MarkSyncing(db, id))
	require.NoError(t, MarkFailed(db, id, "connection refused", false))

	batch, err := NextBatch(db, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	// Age the attempt past the first backoff delay
	old := time.Now().UTC().Add(-time.Minute).Format(sql.DateTimeFormat)
	require.NoError(t, sqlmodel.SyncQueueUpdate(db, id, &sqlmodel.SyncQueueUpdateParam{
		LastAttemptOn: &old,
	}))

	batch, err = NextBatch(db, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].Attempts)
}

func TestMarkSyncingOnlyClaimsPending(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)

	require.NoError(t, MarkSyncing(db, id))

	err = MarkSyncing(db, id)
	require.Error(t, err)
	assert.True(t, e.ContainsError(err, e.MsgSyncQueueItemNotPending))
}

func TestMarkSyncedRequeuesWhenPayloadChangedMidFlight(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationUpdate,
		Payload:    []byte(`{"total":100}`),
	})
	require.NoError(t, err)

	item, err := GetByID(db, id)
	require.NoError(t, err)
	require.NoError(t, MarkSyncing(db, id))

	// A second edit lands while the first payload is in flight
	_, err = Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationUpdate,
		Payload:    []byte(`{"total":300}`),
	})
	require.NoError(t, err)

	requeued, err := MarkSynced(db, id, item.PayloadHash)
	require.NoError(t, err)
	assert.True(t, requeued)

	after, err := GetByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueueStatusPending, after.Status)
	assert.Equal(t, []byte(`{"total":300}`), after.Payload)
}

func TestMarkSyncedCompletesUnchangedPayload(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{"total":100}`),
	})
	require.NoError(t, err)

	item, err := GetByID(db, id)
	require.NoError(t, err)
	require.NoError(t, MarkSyncing(db, id))

	requeued, err := MarkSynced(db, id, item.PayloadHash)
	require.NoError(t, err)
	assert.False(t, requeued)

	after, err := GetByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueueStatusSynced, after.Status)

	count, err := PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMarkFailedTerminalParksItem(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)

	require.NoError(t, MarkSyncing(db, id))
	require.NoError(t, MarkFailed(db, id, "validation rejected", true))

	after, err := GetByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueueStatusFailed, after.Status)
	assert.Equal(t, "validation rejected", after.LastError)

	count, err := FailedCount(db)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQueueCapReclaimsSyncedRows(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < model.SyncQueueMaxSize; i++ {
		_, err := Enqueue(db, &EnqueueParam{
			EntityType: "product",
			EntityID:   fmt.Sprintf("p%d", i),
			Operation:  model.SyncQueueOperationCreate,
			Payload:    []byte(`{}`),
		})
		require.NoError(t, err)
	}

	_, err := Enqueue(db, &EnqueueParam{
		EntityType: "product",
		EntityID:   "overflow",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{}`),
	})
	require.Error(t, err)
	assert.True(t, e.ContainsError(err, e.MsgSyncQueueFull))

	// Completing one item frees capacity once its row is reclaimed
	batch, err := NextBatch(db, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, MarkSyncing(db, batch[0].ID))
	_, err = MarkSynced(db, batch[0].ID, batch[0].PayloadHash)
	require.NoError(t, err)

	_, err = Enqueue(db, &EnqueueParam{
		EntityType: "product",
		EntityID:   "overflow",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)
}

func TestRecoverOrphanedSyncing(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)
	require.NoError(t, MarkSyncing(db, id))

	n, err := RecoverOrphanedSyncing(db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after, err := GetByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueueStatusPending, after.Status)
}

func TestRequeueResetsAttemptsAndToken(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType:    "order",
		EntityID:      "o1",
		Operation:     model.SyncQueueOperationUpdate,
		Payload:       []byte(`{"total":100}`),
		ClientVersion: 1,
	})
	require.NoError(t, err)

	before, err := GetByID(db, id)
	require.NoError(t, err)

	require.NoError(t, MarkSyncing(db, id))
	require.NoError(t, MarkConflict(db, id, "c1"))

	require.NoError(t, Requeue(db, id, []byte(`{"total":100}`), 5, ""))

	after, err := GetByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueueStatusPending, after.Status)
	assert.Equal(t, model.SyncQueueOperationUpdate, after.Operation)
	assert.Equal(t, 0, after.Attempts)
	assert.Equal(t, 5, after.ClientVersion)
	assert.Empty(t, after.ConflictID)
	assert.NotEqual(t, before.WriteToken, after.WriteToken)
}

func TestRequeueCanFlipOperation(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType:    "order",
		EntityID:      "o1",
		Operation:     model.SyncQueueOperationUpdate,
		Payload:       []byte(`{"total":100}`),
		ClientVersion: 3,
	})
	require.NoError(t, err)

	require.NoError(t, MarkSyncing(db, id))
	require.NoError(t, MarkConflict(db, id, "c1"))

	require.NoError(t, Requeue(db, id, []byte(`{"total":100}`), 0,
		model.SyncQueueOperationCreate))

	after, err := GetByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueueStatusPending, after.Status)
	assert.Equal(t, model.SyncQueueOperationCreate, after.Operation)
	assert.Equal(t, 0, after.ClientVersion)
}

func TestEnqueueDeleteOverInFlightCreateBecomesDelete(t *testing.T) {
	db := newTestDB(t)

	id, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationCreate,
		Payload:    []byte(`{"total":100}`),
	})
	require.NoError(t, err)
	require.NoError(t, MarkSyncing(db, id))

	// The create may already have landed, so the coalesced row must undo
	// it rather than cancel out
	sameID, err := Enqueue(db, &EnqueueParam{
		EntityType: "order",
		EntityID:   "o1",
		Operation:  model.SyncQueueOperationDelete,
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, id, sameID)

	item, err := GetByID(db, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueueOperationDelete, item.Operation)
	assert.Equal(t, model.SyncQueueStatusSyncing, item.Status)
}
