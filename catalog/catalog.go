// Package catalog maintains the locally cached product and category data
// the till sells from. Edits follow the same two tier save as orders at a
// lower sync priority, and the whole cache can be reloaded from the server
// after a long offline stretch.
package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tillpoint/pos-lib/catalog/model"
	"github.com/tillpoint/pos-lib/catalog/sqlmodel"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/pubsub"
	"github.com/tillpoint/pos-lib/remote"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue"
	sqmodel "github.com/tillpoint/pos-lib/syncqueue/model"
)

const (
	// SyncPriority catalog housekeeping syncs behind financial records
	SyncPriority = 5

	// DefaultRemoteTimeout bounds the immediate write attempt
	DefaultRemoteTimeout = 5 * time.Second

	ECode0D0101 = e.Code0D01 + "01"
	ECode0D0102 = e.Code0D01 + "02"
	ECode0D0103 = e.Code0D01 + "03"
	ECode0D0104 = e.Code0D01 + "04"
	ECode0D0105 = e.Code0D01 + "05"
	ECode0D0106 = e.Code0D01 + "06"
	ECode0D0107 = e.Code0D01 + "07"
	ECode0D0108 = e.Code0D01 + "08"
	ECode0D0109 = e.Code0D01 + "09"
	ECode0D010A = e.Code0D01 + "0A"
	ECode0D010B = e.Code0D01 + "0B"
	ECode0D010C = e.Code0D01 + "0C"
	ECode0D010D = e.Code0D01 + "0D"
	ECode0D010E = e.Code0D01 + "0E"
	ECode0D010F = e.Code0D01 + "0F"
	ECode0D010G = e.Code0D01 + "0G"
	ECode0D010H = e.Code0D01 + "0H"
	ECode0D010I = e.Code0D01 + "0I"
)

// Service owns the catalog caches and their synchronization
type Service struct {
	db      *sql.Connection
	store   remote.Store
	pub     *pubsub.Broker
	timeout time.Duration
}

// NewService initializes the catalog service
func NewService(db *sql.Connection, store remote.Store, pub *pubsub.Broker) (s *Service) {
	return &Service{
		db:      db,
		store:   store,
		pub:     pub,
		timeout: DefaultRemoteTimeout,
	}
}

// SetRemoteTimeout overrides the immediate write attempt timeout
func (s *Service) SetRemoteTimeout(d time.Duration) {
	s.timeout = d
}

// SaveProduct writes the product to the local cache and pushes it to the
// remote store, queueing when it cannot land right now
func (s *Service) SaveProduct(ctx context.Context, pr *model.Product) (err error) {
	isNew := pr.ID == ""
	if isNew {
		pr.ID = uuid.NewString()
	}

	baseVersion := 0
	if !isNew {
		existing, err := sqlmodel.ProductGetByID(s.db, pr.ID)
		if err != nil {
			if !e.ContainsError(err, e.MsgProductDNE) {
				return e.W(err, ECode0D0101)
			}
			isNew = true
		} else {
			baseVersion = existing.Version
		}
	}

	pr.Version = baseVersion + 1
	pr.UpdatedOn = sql.Now()

	if err := sqlmodel.ProductUpsert(s.db, pr); err != nil {
		return e.W(err, ECode0D0102)
	}

	s.pub.Publish(pubsub.Event{
		Type:    model.ProductEntityType,
		ID:      pr.ID,
		Version: pr.Version,
	})

	payload, err := json.Marshal(pr)
	if err != nil {
		return e.W(err, ECode0D0103)
	}

	if err := s.push(ctx, model.ProductEntityType, pr.ID, isNew,
		payload, baseVersion, func(version int) error {
			return sqlmodel.ProductSetVersion(s.db, pr.ID, version)
		}); err != nil {
		return e.W(err, ECode0D0104)
	}

	return nil
}

// SaveCategory writes the category to the local cache and pushes it to the
// remote store, queueing when it cannot land right now
func (s *Service) SaveCategory(ctx context.Context, c *model.Category) (err error) {
	isNew := c.ID == ""
	if isNew {
		c.ID = uuid.NewString()
	}

	baseVersion := 0
	if !isNew {
		existing, err := sqlmodel.CategoryGetByID(s.db, c.ID)
		if err != nil {
			if !e.ContainsError(err, e.MsgCategoryDNE) {
				return e.W(err, ECode0D0105)
			}
			isNew = true
		} else {
			baseVersion = existing.Version
			if c.Price == 0 {
				c.Price = existing.Price
			}
		}
	}

	c.Version = baseVersion + 1
	c.UpdatedOn = sql.Now()

	if err := sqlmodel.CategoryUpsert(s.db, c); err != nil {
		return e.W(err, ECode0D0106)
	}

	s.pub.Publish(pubsub.Event{
		Type:    model.CategoryEntityType,
		ID:      c.ID,
		Version: c.Version,
	})

	payload, err := json.Marshal(c)
	if err != nil {
		return e.W(err, ECode0D0107)
	}

	if err := s.push(ctx, model.CategoryEntityType, c.ID, isNew,
		payload, baseVersion, func(version int) error {
			return sqlmodel.CategorySetVersion(s.db, c.ID, version)
		}); err != nil {
		return e.W(err, ECode0D0108)
	}

	return nil
}

// SetCategoryPrice writes the category level price. Queued under its own
// entity type so a price edit never clobbers a concurrent category edit.
func (s *Service) SetCategoryPrice(ctx context.Context, categoryID string,
	price int64) (err error) {
	existing, err := sqlmodel.CategoryGetByID(s.db, categoryID)
	if err != nil {
		return e.W(err, ECode0D0109)
	}

	baseVersion := existing.Version
	version := baseVersion + 1

	if err := sqlmodel.CategorySetPrice(s.db, categoryID, price, version); err != nil {
		return e.W(err, ECode0D010A)
	}

	s.pub.Publish(pubsub.Event{
		Type:    model.CategoryPriceEntityType,
		ID:      categoryID,
		Version: version,
	})

	payload, err := json.Marshal(&model.CategoryPrice{
		CategoryID: categoryID,
		Price:      price,
		Version:    version,
	})
	if err != nil {
		return e.W(err, ECode0D010B)
	}

	if err := s.push(ctx, model.CategoryPriceEntityType, categoryID, false,
		payload, baseVersion, func(version int) error {
			return sqlmodel.CategorySetVersion(s.db, categoryID, version)
		}); err != nil {
		return e.W(err, ECode0D010C)
	}

	return nil
}

// push is the shared second tier: try the remote inline unless a queued
// write must go first, fall back to the queue on any failure
func (s *Service) push(ctx context.Context, entityType, entityID string,
	isNew bool, payload []byte, baseVersion int,
	writeBack func(version int) error) (err error) {
	op := sqmodel.SyncQueueOperationUpdate
	if isNew {
		op = sqmodel.SyncQueueOperationCreate
	}

	active, err := syncqueue.HasActive(s.db, entityType, entityID)
	if err != nil {
		return e.W(err, ECode0D010D)
	}

	if !active {
		rctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		token := uuid.NewString()

		var r *remote.Record
		var rerr error
		if isNew {
			r, rerr = s.store.Create(rctx, entityType, entityID, payload, token)
		} else {
			r, rerr = s.store.Update(rctx, entityType, entityID, payload,
				baseVersion, token)
		}
		if rerr == nil {
			if err := writeBack(r.Version); err != nil {
				log.Error().Err(err).Msgf("version write-back for %s %s failed",
					entityType, entityID)
			}
			return nil
		}
		log.Debug().Err(rerr).Msgf("immediate sync of %s %s failed, queueing",
			entityType, entityID)
	}

	if _, err := syncqueue.Enqueue(s.db, &syncqueue.EnqueueParam{
		EntityType:    entityType,
		EntityID:      entityID,
		Operation:     op,
		Payload:       payload,
		Priority:      SyncPriority,
		ClientVersion: baseVersion,
	}); err != nil {
		return e.W(err, ECode0D010E)
	}

	return nil
}

// GetProduct returns the cached product
func (s *Service) GetProduct(id string) (pr *model.Product, err error) {
	pr, err = sqlmodel.ProductGetByID(s.db, id)
	if err != nil {
		return nil, e.W(err, ECode0D010F)
	}

	return pr, nil
}

// GetCategory returns the cached category
func (s *Service) GetCategory(id string) (c *model.Category, err error) {
	c, err = sqlmodel.CategoryGetByID(s.db, id)
	if err != nil {
		return nil, e.W(err, ECode0D010G)
	}

	return c, nil
}

// RefreshProducts replaces the product cache with the server's list. Run
// after reconnecting from a long offline stretch.
func (s *Service) RefreshProducts(pList []*model.Product) (err error) {
	if err := sqlmodel.ProductBulkRefresh(s.db, pList); err != nil {
		return e.W(err, ECode0D010H)
	}

	// Blank id signals a full reload
	s.pub.Publish(pubsub.Event{Type: model.ProductEntityType})

	log.Info().Msgf("product cache refreshed, %d products", len(pList))

	return nil
}

// RefreshCategories replaces the category cache with the server's list
func (s *Service) RefreshCategories(cList []*model.Category) (err error) {
	if err := sqlmodel.CategoryBulkRefresh(s.db, cList); err != nil {
		return e.W(err, ECode0D010I)
	}

	s.pub.Publish(pubsub.Event{Type: model.CategoryEntityType})

	log.Info().Msgf("category cache refreshed, %d categories", len(cList))

	return nil
}
