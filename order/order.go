// Package order captures sales at the terminal. Writes land in the local
// cache first so the till keeps working offline, then reach the remote
// store either immediately or through the sync queue.
package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/order/model"
	"github.com/tillpoint/pos-lib/order/sqlmodel"
	"github.com/tillpoint/pos-lib/pubsub"
	"github.com/tillpoint/pos-lib/remote"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue"
	sqmodel "github.com/tillpoint/pos-lib/syncqueue/model"
)

const (
	// SyncPriority orders are financial records, they sync ahead of
	// catalog housekeeping
	SyncPriority = 0

	// DefaultRemoteTimeout bounds the immediate write attempt so the till
	// never blocks on a dead link
	DefaultRemoteTimeout = 5 * time.Second

	ECode0C0101 = e.Code0C01 + "01"
	ECode0C0102 = e.Code0C01 + "02"
	ECode0C0103 = e.Code0C01 + "03"
	ECode0C0104 = e.Code0C01 + "04"
	ECode0C0105 = e.Code0C01 + "05"
	ECode0C0106 = e.Code0C01 + "06"
	ECode0C0107 = e.Code0C01 + "07"
	ECode0C0108 = e.Code0C01 + "08"
	ECode0C0109 = e.Code0C01 + "09"
	ECode0C010A = e.Code0C01 + "0A"
)

// Service owns the order cache and its synchronization
type Service struct {
	db      *sql.Connection
	store   remote.Store
	pub     *pubsub.Broker
	timeout time.Duration
}

// NewService initializes the order service
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

// Save writes the order to the local cache and pushes it to the remote
// store. The local write always succeeds or fails immediately; the remote
// write is best effort, anything that cannot land right now is queued. The
// caller gets the saved order back with the bumped version.
func (s *Service) Save(ctx context.Context, o *model.Order) (err error) {
	isNew := o.ID == ""
	if isNew {
		o.ID = model.NewLocalID()
	}

	// The version the edit is based on, the remote write's precondition
	baseVersion := 0
	if !isNew {
		existing, err := sqlmodel.OrderGetByID(s.db, o.ID)
		if err != nil {
			if !e.ContainsError(err, e.MsgOrderDNE) {
				return e.W(err, ECode0C0101)
			}
			isNew = true
		} else {
			baseVersion = existing.Version
			if o.CreatedOn == "" {
				o.CreatedOn = existing.CreatedOn
			}
			if o.ServerID == "" {
				o.ServerID = existing.ServerID
			}
		}
	}

	o.Version = baseVersion + 1
	o.UpdatedOn = sql.Now()
	if o.CreatedOn == "" {
		o.CreatedOn = o.UpdatedOn
	}

	if err := sqlmodel.OrderUpsert(s.db, o); err != nil {
		return e.W(err, ECode0C0102)
	}

	s.pub.Publish(pubsub.Event{
		Type:    model.EntityType,
		ID:      o.ID,
		Version: o.Version,
	})

	payload, err := json.Marshal(o)
	if err != nil {
		return e.W(err, ECode0C0103)
	}

	op := sqmOperation(isNew, o.ServerID)

	// An already queued write must go first, coalesce into it instead of
	// jumping the line
	active, err := syncqueue.HasActive(s.db, model.EntityType, o.ID)
	if err != nil {
		return e.W(err, ECode0C0104)
	}

	if !active {
		if done := s.tryImmediate(ctx, o, op, payload, baseVersion); done {
			return nil
		}
	}

	if _, err := syncqueue.Enqueue(s.db, &syncqueue.EnqueueParam{
		EntityType:    model.EntityType,
		EntityID:      o.ID,
		Operation:     op,
		Payload:       payload,
		Priority:      SyncPriority,
		ClientVersion: baseVersion,
	}); err != nil {
		return e.W(err, ECode0C0105)
	}

	return nil
}

// tryImmediate attempts the remote write inline. Returns true only when the
// store accepted it; every failure, including conflicts, falls back to the
// queue where the engine applies the full detection rules.
func (s *Service) tryImmediate(ctx context.Context, o *model.Order, op string,
	payload []byte, baseVersion int) (done bool) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token := uuid.NewString()

	var r *remote.Record
	var err error
	if op == sqmodel.SyncQueueOperationCreate {
		r, err = s.store.Create(rctx, model.EntityType, o.ID, payload, token)
	} else {
		r, err = s.store.Update(rctx, model.EntityType, o.ID, payload, baseVersion, token)
	}
	if err != nil {
		log.Debug().Err(err).Msgf("immediate sync of order %s failed, queueing", o.ID)
		return false
	}

	if err := sqlmodel.OrderSetServerFields(s.db, o.ID, r.ServerID, r.Version); err != nil {
		log.Error().Err(err).Msgf("server field write-back for order %s failed", o.ID)
	}
	o.ServerID = r.ServerID
	o.Version = r.Version

	return true
}

func sqmOperation(isNew bool, serverID string) string {
	if isNew && serverID == "" {
		return sqmodel.SyncQueueOperationCreate
	}
	return sqmodel.SyncQueueOperationUpdate
}

// Get returns the cached order
func (s *Service) Get(id string) (o *model.Order, err error) {
	o, err = sqlmodel.OrderGetByID(s.db, id)
	if err != nil {
		return nil, e.W(err, ECode0C0106)
	}

	return o, nil
}

// List returns cached orders, newest first
func (s *Service) List(limit, offset int) (oList []*model.Order, count int, err error) {
	oList, count, err = sqlmodel.OrderGet(s.db, &sqlmodel.OrderGetParam{
		Limit:            limit,
		Offset:           offset,
		FlagCount:        true,
		OrderByCreatedOn: "desc",
	})
	if err != nil {
		return nil, 0, e.W(err, ECode0C0107)
	}

	return oList, count, nil
}

// ApplyServer writes back server-assigned fields after the engine synced a
// queued order write
func (s *Service) ApplyServer(db *sql.Connection, entityID string, r *remote.Record) (err error) {
	if err := sqlmodel.OrderSetServerFields(db, entityID, r.ServerID, r.Version); err != nil {
		return e.W(err, ECode0C0108)
	}

	return nil
}

// ApplyServerData replaces the cached order with the server copy. Used
// when a conflict resolves as keep server.
func (s *Service) ApplyServerData(db *sql.Connection, entityID string, payload []byte) (err error) {
	o := &model.Order{}
	if err := json.Unmarshal(payload, o); err != nil {
		return e.W(err, ECode0C0109)
	}

	if o.ID == "" {
		o.ID = entityID
	}

	if err := sqlmodel.OrderUpsert(db, o); err != nil {
		return e.W(err, ECode0C010A)
	}

	s.pub.Publish(pubsub.Event{
		Type:    model.EntityType,
		ID:      o.ID,
		Version: o.Version,
	})

	return nil
}
