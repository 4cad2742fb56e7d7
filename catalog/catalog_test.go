package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tillpoint/pos-lib/catalog/model"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/migration"
	"github.com/tillpoint/pos-lib/pubsub"
	"github.com/tillpoint/pos-lib/remote"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue"
	sqmodel "github.com/tillpoint/pos-lib/syncqueue/model"
)

type fakeStore struct {
	mutex   sync.Mutex
	offline bool
	records map[string]*remote.Record
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*remote.Record{}}
}

func (s *fakeStore) write(entityType, entityID string, payload json.RawMessage,
	version int, writeToken string) (r *remote.Record, err error) {
	if s.offline {
		return nil, e.N("TST001", e.MsgRemoteUnavailable)
	}

	s.nextID++
	r = &remote.Record{
		EntityID:   entityID,
		ServerID:   fmt.Sprintf("SRV-%d", s.nextID),
		Version:    version,
		Hash:       syncqueue.HashPayload(payload),
		WriteToken: writeToken,
		Payload:    payload,
	}
	s.records[entityType+"/"+entityID] = r

	return r, nil
}

func (s *fakeStore) Create(ctx context.Context, entityType, entityID string,
	payload json.RawMessage, writeToken string) (r *remote.Record, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.write(entityType, entityID, payload, 1, writeToken)
}

func (s *fakeStore) Update(ctx context.Context, entityType, entityID string,
	payload json.RawMessage, baseVersion int, writeToken string) (r *remote.Record, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.write(entityType, entityID, payload, baseVersion+1, writeToken)
}

func (s *fakeStore) Delete(ctx context.Context, entityType, entityID string,
	baseVersion int) (err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.offline {
		return e.N("TST002", e.MsgRemoteUnavailable)
	}
	delete(s.records, entityType+"/"+entityID)

	return nil
}

func (s *fakeStore) FetchCurrent(ctx context.Context, entityType,
	entityID string) (r *remote.Record, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cur, ok := s.records[entityType+"/"+entityID]
	if !ok {
		return nil, e.N("TST003", e.MsgRemoteRecordDNE)
	}

	return cur, nil
}

func newTestService(t *testing.T) (db *sql.Connection, svc *Service, store *fakeStore) {
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

	store = newFakeStore()
	svc = NewService(db, store, pubsub.NewBroker())

	return db, svc, store
}

func TestSaveProductOfflineQueuesAtCatalogPriority(t *testing.T) {
	db, svc, store := newTestService(t)
	store.offline = true

	pr := &model.Product{Name: "Espresso", RetailPrice: 25000, IsActive: true}
	require.NoError(t, svc.SaveProduct(context.Background(), pr))
	require.NotEmpty(t, pr.ID)

	cached, err := svc.GetProduct(pr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), cached.RetailPrice)
	assert.Equal(t, 1, cached.Version)

	batch, err := syncqueue.NextBatch(db, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, model.ProductEntityType, batch[0].EntityType)
	assert.Equal(t, SyncPriority, batch[0].Priority)
	assert.Equal(t, sqmodel.SyncQueueOperationCreate, batch[0].Operation)
}

func TestSaveProductOnlineWritesThrough(t *testing.T) {
	db, svc, store := newTestService(t)

	pr := &model.Product{Name: "Latte", RetailPrice: 30000, IsActive: true}
	require.NoError(t, svc.SaveProduct(context.Background(), pr))

	store.mutex.Lock()
	assert.Len(t, store.records, 1)
	store.mutex.Unlock()

	count, err := syncqueue.PendingCount(db)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSaveCategoryPreservesPriceOnEdit(t *testing.T) {
	_, svc, store := newTestService(t)
	store.offline = true

	c := &model.Category{Name: "Coffee", IsActive: true, ShowInPOS: true}
	require.NoError(t, svc.SaveCategory(context.Background(), c))

	require.NoError(t, svc.SetCategoryPrice(context.Background(), c.ID, 15000))

	// A rename must not clobber the price
	c.Name = "Hot Coffee"
	c.Price = 0
	require.NoError(t, svc.SaveCategory(context.Background(), c))

	cached, err := svc.GetCategory(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hot Coffee", cached.Name)
	assert.Equal(t, int64(15000), cached.Price)
}

func TestSetCategoryPriceQueuesOwnEntityType(t *testing.T) {
	db, svc, store := newTestService(t)
	store.offline = true

	c := &model.Category{Name: "Coffee", IsActive: true}
	require.NoError(t, svc.SaveCategory(context.Background(), c))

	require.NoError(t, svc.SetCategoryPrice(context.Background(), c.ID, 15000))

	batch, err := syncqueue.NextBatch(db, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	types := []string{batch[0].EntityType, batch[1].EntityType}
	assert.Contains(t, types, model.CategoryEntityType)
	assert.Contains(t, types, model.CategoryPriceEntityType)

	cached, err := svc.GetCategory(c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), cached.Price)
}

func TestSetCategoryPriceUnknownCategory(t *testing.T) {
	_, svc, _ := newTestService(t)

	err := svc.SetCategoryPrice(context.Background(), "nope", 100)
	require.Error(t, err)
	assert.True(t, e.ContainsError(err, e.MsgCategoryDNE))
}

func TestRefreshProductsReplacesCache(t *testing.T) {
	_, svc, store := newTestService(t)
	store.offline = true

	stale := &model.Product{Name: "Old", RetailPrice: 1, IsActive: true}
	require.NoError(t, svc.SaveProduct(context.Background(), stale))

	fresh := make([]*model.Product, 0, 50)
	for i := 0; i < 50; i++ {
		fresh = append(fresh, &model.Product{
			ID:          fmt.Sprintf("p%d", i),
			Name:        fmt.Sprintf("Product %d", i),
			RetailPrice: int64(1000 * i),
			IsActive:    true,
			Version:     1,
			UpdatedOn:   sql.Now(),
		})
	}
	require.NoError(t, svc.RefreshProducts(fresh))

	_, err := svc.GetProduct(stale.ID)
	require.Error(t, err)
	assert.True(t, e.ContainsError(err, e.MsgProductDNE))

	cached, err := svc.GetProduct("p7")
	require.NoError(t, err)
	assert.Equal(t, int64(7000), cached.RetailPrice)
}

func TestRefreshCategoriesReplacesCache(t *testing.T) {
	_, svc, _ := newTestService(t)

	fresh := []*model.Category{
		{ID: "c1", Name: "Coffee", SortOrder: 1, IsActive: true, Version: 1, UpdatedOn: sql.Now()},
		{ID: "c2", Name: "Tea", SortOrder: 2, IsActive: true, Version: 1, UpdatedOn: sql.Now()},
	}
	require.NoError(t, svc.RefreshCategories(fresh))

	cached, err := svc.GetCategory("c2")
	require.NoError(t, err)
	assert.Equal(t, "Tea", cached.Name)
}

func TestCategoryPriceReconcilerAppliesServerData(t *testing.T) {
	db, svc, store := newTestService(t)
	store.offline = true

	c := &model.Category{Name: "Coffee", IsActive: true}
	require.NoError(t, svc.SaveCategory(context.Background(), c))

	payload, err := json.Marshal(&model.CategoryPrice{
		CategoryID: c.ID,
		Price:      90000,
		Version:    5,
	})
	require.NoError(t, err)

	rc := svc.CategoryPriceReconciler()
	require.NoError(t, rc.ApplyServerData(db, c.ID, payload))

	cached, err := svc.GetCategory(c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), cached.Price)
	assert.Equal(t, 5, cached.Version)
}
