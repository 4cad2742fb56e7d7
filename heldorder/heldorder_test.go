package heldorder

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/heldorder/model"
	"github.com/tillpoint/pos-lib/migration"
	"github.com/tillpoint/pos-lib/order"
	ordermodel "github.com/tillpoint/pos-lib/order/model"
	ordersqlmodel "github.com/tillpoint/pos-lib/order/sqlmodel"
	"github.com/tillpoint/pos-lib/pubsub"
	"github.com/tillpoint/pos-lib/remote"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue"
)

// offlineStore refuses every remote write so promoted orders always land
// in the queue
type offlineStore struct{}

func (s *offlineStore) Create(ctx context.Context, entityType, entityID string,
	payload json.RawMessage, writeToken string) (r *remote.Record, err error) {
	return nil, e.N("TST001", e.MsgRemoteUnavailable)
}

func (s *offlineStore) Update(ctx context.Context, entityType, entityID string,
	payload json.RawMessage, baseVersion int, writeToken string) (r *remote.Record, err error) {
	return nil, e.N("TST002", e.MsgRemoteUnavailable)
}

func (s *offlineStore) Delete(ctx context.Context, entityType, entityID string,
	baseVersion int) (err error) {
	return e.N("TST003", e.MsgRemoteUnavailable)
}

func (s *offlineStore) FetchCurrent(ctx context.Context, entityType,
	entityID string) (r *remote.Record, err error) {
	return nil, e.N("TST004", e.MsgRemoteRecordDNE)
}

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
	require.NoError(t, m.AddMigrationList(order.GetMigrationList()))
	require.NoError(t, m.AddMigrationList(GetMigrationList()))
	require.NoError(t, m.Upgrade())

	return db
}

func TestHoldAndListByTerminal(t *testing.T) {
	db := newTestDB(t)

	for _, label := range []string{"Table 4", "Table 9"} {
		_, err := Hold(db, &model.HeldOrder{
			TerminalID: "till-1",
			Label:      label,
			Cart:       json.RawMessage(`{"items":[{"sku":"ESP","qty":2}]}`),
			Total:      50000,
		})
		require.NoError(t, err)
	}

	_, err := Hold(db, &model.HeldOrder{
		TerminalID: "till-2",
		Label:      "Counter",
		Total:      12000,
	})
	require.NoError(t, err)

	hList, err := ListByTerminal(db, "till-1")
	require.NoError(t, err)
	require.Len(t, hList, 2)
	// Oldest first
	assert.Equal(t, "Table 4", hList[0].Label)
	assert.Equal(t, "Table 9", hList[1].Label)
}

func TestHoldDefaultsEmptyCart(t *testing.T) {
	db := newTestDB(t)

	id, err := Hold(db, &model.HeldOrder{TerminalID: "till-1", Label: "Walk-in"})
	require.NoError(t, err)

	h, err := Get(db, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(h.Cart))
}

func TestDeleteDiscardsHeldOrder(t *testing.T) {
	db := newTestDB(t)

	id, err := Hold(db, &model.HeldOrder{TerminalID: "till-1", Label: "Table 2"})
	require.NoError(t, err)

	require.NoError(t, Delete(db, id))

	_, err = Get(db, id)
	require.Error(t, err)
	assert.True(t, e.ContainsError(err, e.MsgHeldOrderDNE))
}

func TestPromoteCreatesOrderAndRemovesHold(t *testing.T) {
	db := newTestDB(t)
	svc := order.NewService(db, &offlineStore{}, pubsub.NewBroker())

	cart := `{"items":[{"sku":"ESP","qty":2}]}`
	id, err := Hold(db, &model.HeldOrder{
		TerminalID: "till-1",
		Label:      "Table 7",
		Cart:       json.RawMessage(cart),
		Total:      87500,
	})
	require.NoError(t, err)

	o, err := Promote(context.Background(), db, svc, id)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, ordermodel.OrderStatusNew, o.Status)
	assert.Equal(t, "Table 7", o.Notes)
	assert.Equal(t, int64(87500), o.Total)
	assert.JSONEq(t, cart, string(o.Cart))

	// The order is cached locally, line items included, and queued for sync
	cached, err := ordersqlmodel.OrderGetByID(db, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(87500), cached.Total)
	assert.JSONEq(t, cart, string(cached.Cart))

	count, err := syncqueue.PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The held row is gone
	_, err = Get(db, id)
	require.Error(t, err)
	assert.True(t, e.ContainsError(err, e.MsgHeldOrderDNE))
}

func TestPromoteUnknownHold(t *testing.T) {
	db := newTestDB(t)
	svc := order.NewService(db, &offlineStore{}, pubsub.NewBroker())

	_, err := Promote(context.Background(), db, svc, 999)
	require.Error(t, err)
	assert.True(t, e.ContainsError(err, e.MsgHeldOrderDNE))
}

func TestCleanupPurgesOldHolds(t *testing.T) {
	db := newTestDB(t)

	_, err := Hold(db, &model.HeldOrder{TerminalID: "till-1", Label: "Stale"})
	require.NoError(t, err)

	// A cutoff in the future purges everything created so far
	cutoff := time.Now().UTC().Add(time.Hour).Format(sql.DateTimeFormat)
	require.NoError(t, Cleanup(db, cutoff))

	hList, err := ListByTerminal(db, "till-1")
	require.NoError(t, err)
	assert.Empty(t, hList)
}
