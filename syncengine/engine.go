// Package syncengine drains the durable sync queue against the remote
// store. The engine runs one tick at a time: it claims a batch of pending
// items, pushes each to the store, and settles every item as synced, failed
// or conflicted. The queue and conflict packages own the bookkeeping, the
// engine owns the loop and the conflict detection rules.
package syncengine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tillpoint/pos-lib/conflict"
	conflictmodel "github.com/tillpoint/pos-lib/conflict/model"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/network"
	"github.com/tillpoint/pos-lib/pubsub"
	"github.com/tillpoint/pos-lib/remote"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncengine/sqlmodel"
	"github.com/tillpoint/pos-lib/syncqueue"
	sqmodel "github.com/tillpoint/pos-lib/syncqueue/model"
)

const (
	ECode090101 = e.Code0901 + "01"
	ECode090102 = e.Code0901 + "02"
	ECode090103 = e.Code0901 + "03"
	ECode090104 = e.Code0901 + "04"
	ECode090105 = e.Code0901 + "05"
	ECode090106 = e.Code0901 + "06"
	ECode090107 = e.Code0901 + "07"
	ECode090108 = e.Code0901 + "08"
	ECode090109 = e.Code0901 + "09"
	ECode09010A = e.Code0901 + "0A"
	ECode09010B = e.Code0901 + "0B"
)

// item outcomes tallied per run
const (
	outcomeSynced   = "synced"
	outcomeFailed   = "failed"
	outcomeConflict = "conflict"
	outcomeSkipped  = "skipped"
)

// Config tunes the engine loop
type Config struct {
	// TickInterval how often the queue is drained while online
	TickInterval time.Duration
	// ReconnectDelay grace period between the monitor announcing online
	// and the catch-up tick, so the link can settle
	ReconnectDelay time.Duration
	// BatchLimit max queue items claimed per tick
	BatchLimit int
	// MaxAttempts attempts before an item is parked as failed
	MaxAttempts int
	// RemoteTimeout per remote call
	RemoteTimeout time.Duration
}

// DefaultConfig returns the standard engine tuning
func DefaultConfig() Config {
	return Config{
		TickInterval:   30 * time.Second,
		ReconnectDelay: 5 * time.Second,
		BatchLimit:     20,
		MaxAttempts:    sqmodel.SyncQueueMaxAttempts,
		RemoteTimeout:  10 * time.Second,
	}
}

// Reconciler writes server state back into a producer's local cache. Each
// producer registers one per entity type it owns.
type Reconciler interface {
	// ApplyServer writes back server-assigned fields (permanent id,
	// version) after a successful sync. It must not overwrite local
	// payload fields.
	ApplyServer(db *sql.Connection, entityID string, r *remote.Record) error
	// ApplyServerData replaces the locally cached record with the server
	// copy. Used when a conflict is resolved as keep server.
	ApplyServerData(db *sql.Connection, entityID string, payload []byte) error
}

// Engine owns the background sync loop
type Engine struct {
	db      *sql.Connection
	cfg     Config
	store   remote.Store
	monitor *network.Monitor
	broker  *pubsub.Broker

	mutex       sync.Mutex
	started     bool
	paused      bool
	running     bool
	kickCh      chan struct{}
	stopCh      chan struct{}
	unsubMon    func()
	reconcilers map[string]Reconciler
	wg          sync.WaitGroup
}

// NewEngine initializes an engine. Call Register for each producer before
// Start.
func NewEngine(db *sql.Connection, cfg Config, store remote.Store,
	monitor *network.Monitor, broker *pubsub.Broker) (eng *Engine) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultConfig().BatchLimit
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultConfig().RemoteTimeout
	}

	return &Engine{
		db:          db,
		cfg:         cfg,
		store:       store,
		monitor:     monitor,
		broker:      broker,
		kickCh:      make(chan struct{}, 1),
		reconcilers: map[string]Reconciler{},
	}
}

// Register binds the reconciler for an entity type. Must be called before
// Start.
func (eng *Engine) Register(entityType string, r Reconciler) {
	eng.mutex.Lock()
	defer eng.mutex.Unlock()
	eng.reconcilers[entityType] = r
}

func (eng *Engine) reconciler(entityType string) (r Reconciler) {
	eng.mutex.Lock()
	defer eng.mutex.Unlock()
	return eng.reconcilers[entityType]
}

// Start recovers orphaned items and launches the loop. Returns an error if
// the engine is already started.
func (eng *Engine) Start(ctx context.Context) (err error) {
	eng.mutex.Lock()
	if eng.started {
		eng.mutex.Unlock()
		return e.N(ECode090101, "sync engine already started")
	}
	eng.started = true
	eng.stopCh = make(chan struct{})
	eng.mutex.Unlock()

	// Items stuck in syncing from a previous shutdown go back to pending
	if _, err := syncqueue.RecoverOrphanedSyncing(eng.db); err != nil {
		eng.mutex.Lock()
		eng.started = false
		eng.mutex.Unlock()
		return e.W(err, ECode090102)
	}

	// Catch up shortly after the network comes back
	eng.unsubMon = eng.monitor.OnChange(func(online bool) {
		if !online {
			return
		}
		time.AfterFunc(eng.cfg.ReconnectDelay, eng.TickNow)
	})

	eng.wg.Add(1)
	go eng.loop(ctx)

	return nil
}

// Stop halts the loop and waits for an in-flight tick to finish
func (eng *Engine) Stop() {
	eng.mutex.Lock()
	if !eng.started {
		eng.mutex.Unlock()
		return
	}
	eng.started = false
	close(eng.stopCh)
	unsub := eng.unsubMon
	eng.unsubMon = nil
	eng.mutex.Unlock()

	if unsub != nil {
		unsub()
	}
	eng.wg.Wait()
}

// Pause suspends processing without stopping the loop. Queued writes keep
// accumulating.
func (eng *Engine) Pause() {
	eng.mutex.Lock()
	defer eng.mutex.Unlock()
	eng.paused = true
}

// Resume re-enables processing and triggers an immediate tick
func (eng *Engine) Resume() {
	eng.mutex.Lock()
	eng.paused = false
	eng.mutex.Unlock()
	eng.TickNow()
}

// TickNow requests an immediate tick. A no-op when a tick is already
// queued or running.
func (eng *Engine) TickNow() {
	select {
	case eng.kickCh <- struct{}{}:
	default:
	}
}

// IsSyncing reports whether a tick is in flight
func (eng *Engine) IsSyncing() bool {
	eng.mutex.Lock()
	defer eng.mutex.Unlock()
	return eng.running
}

func (eng *Engine) loop(ctx context.Context) {
	defer eng.wg.Done()

	ticker := time.NewTicker(eng.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-eng.stopCh:
			return
		case <-ticker.C:
			eng.tick(ctx)
		case <-eng.kickCh:
			eng.tick(ctx)
		}
	}
}

// tick drains one batch. Concurrent triggers coalesce: if a tick is
// already running the new trigger is dropped.
func (eng *Engine) tick(ctx context.Context) {
	eng.mutex.Lock()
	if eng.running || eng.paused {
		eng.mutex.Unlock()
		return
	}
	eng.running = true
	eng.mutex.Unlock()

	defer func() {
		eng.mutex.Lock()
		eng.running = false
		eng.mutex.Unlock()
	}()

	if !eng.monitor.IsOnline() {
		return
	}

	runID, err := sqlmodel.SyncRunCreate(eng.db)
	if err != nil {
		log.Error().Err(err).Msg("sync run create failed")
		return
	}

	batch, err := syncqueue.NextBatch(eng.db, eng.cfg.BatchLimit)
	if err != nil {
		if err2 := sqlmodel.SyncRunFail(eng.db, runID, err.Error(), 0, 0, 0); err2 != nil {
			log.Error().Err(err2).Msg("sync run fail failed")
		}
		log.Error().Err(err).Msg("sync batch fetch failed")
		return
	}

	var synced, failed, conflicted int
	for _, item := range batch {
		select {
		case <-ctx.Done():
			// Remaining items stay pending for the next start
			if err := sqlmodel.SyncRunFail(eng.db, runID, ctx.Err().Error(),
				synced, failed, conflicted); err != nil {
				log.Error().Err(err).Msg("sync run fail failed")
			}
			return
		default:
		}

		switch eng.processItem(ctx, item) {
		case outcomeSynced:
			synced++
		case outcomeFailed:
			failed++
		case outcomeConflict:
			conflicted++
		}
	}

	if err := sqlmodel.SyncRunComplete(eng.db, runID, synced, failed, conflicted); err != nil {
		log.Error().Err(err).Msg("sync run complete failed")
	}

	if synced > 0 || failed > 0 || conflicted > 0 {
		log.Info().Msgf("sync run %d: %d synced, %d failed, %d conflicted",
			runID, synced, failed, conflicted)
	}
}

// processItem pushes one queue item to the store and settles it. Errors
// never propagate, an item failure must not abort the batch.
func (eng *Engine) processItem(ctx context.Context, item *sqmodel.SyncQueue) (outcome string) {
	if err := syncqueue.MarkSyncing(eng.db, item.ID); err != nil {
		// Taken by a concurrent trigger or coalesced away, leave it
		if !e.ContainsError(err, e.MsgSyncQueueItemNotPending) {
			log.Error().Err(err).Msgf("mark syncing %d failed", item.ID)
		}
		return outcomeSkipped
	}

	rctx, cancel := context.WithTimeout(ctx, eng.cfg.RemoteTimeout)
	defer cancel()

	switch item.Operation {
	case sqmodel.SyncQueueOperationCreate:
		return eng.syncCreate(rctx, item)
	case sqmodel.SyncQueueOperationUpdate:
		return eng.syncUpdate(rctx, item)
	case sqmodel.SyncQueueOperationDelete:
		return eng.syncDelete(rctx, item)
	}

	return eng.settleFailure(item, e.N(ECode090103, "unknown operation"), true)
}

func (eng *Engine) syncCreate(ctx context.Context, item *sqmodel.SyncQueue) (outcome string) {
	r, err := eng.store.Create(ctx, item.EntityType, item.EntityID,
		item.Payload, item.WriteToken)
	if err != nil {
		if remote.IsConflict(err) {
			// A record with this entity id already exists server side
			cur, ferr := eng.store.FetchCurrent(ctx, item.EntityType, item.EntityID)
			if ferr != nil {
				return eng.settleFailure(item, ferr, false)
			}
			return eng.settleConflict(item, cur, conflictmodel.ConflictTypeConcurrentUpdate)
		}
		return eng.settleFailure(item, err, remote.IsRejected(err))
	}

	return eng.settleSynced(item, r, false)
}

func (eng *Engine) syncUpdate(ctx context.Context, item *sqmodel.SyncQueue) (outcome string) {
	cur, err := eng.store.FetchCurrent(ctx, item.EntityType, item.EntityID)
	if err != nil {
		if remote.IsNotFound(err) {
			return eng.settleConflict(item, nil, conflictmodel.ConflictTypeDeletedOnServer)
		}
		return eng.settleFailure(item, err, false)
	}

	// Idempotency: the write already landed, through a previous attempt
	// that timed out after applying or another terminal replaying it
	if cur.Hash == item.PayloadHash || cur.WriteToken == item.WriteToken {
		return eng.settleSynced(item, cur, false)
	}

	if cur.Version > item.ClientVersion {
		return eng.settleConflict(item, cur, conflictmodel.ConflictTypeVersionMismatch)
	}

	r, err := eng.store.Update(ctx, item.EntityType, item.EntityID,
		item.Payload, item.ClientVersion, item.WriteToken)
	if err != nil {
		if remote.IsConflict(err) {
			// Raced a concurrent writer between fetch and update
			cur, ferr := eng.store.FetchCurrent(ctx, item.EntityType, item.EntityID)
			if ferr != nil {
				return eng.settleFailure(item, ferr, false)
			}
			return eng.settleConflict(item, cur, conflictmodel.ConflictTypeVersionMismatch)
		}
		return eng.settleFailure(item, err, remote.IsRejected(err))
	}

	return eng.settleSynced(item, r, false)
}

func (eng *Engine) syncDelete(ctx context.Context, item *sqmodel.SyncQueue) (outcome string) {
	cur, err := eng.store.FetchCurrent(ctx, item.EntityType, item.EntityID)
	if err != nil {
		if remote.IsNotFound(err) {
			// Already gone, nothing to delete
			return eng.settleSynced(item, nil, true)
		}
		return eng.settleFailure(item, err, false)
	}

	if cur.Version > item.ClientVersion {
		return eng.settleConflict(item, cur, conflictmodel.ConflictTypeVersionMismatch)
	}

	if err := eng.store.Delete(ctx, item.EntityType, item.EntityID,
		item.ClientVersion); err != nil {
		if remote.IsConflict(err) {
			cur, ferr := eng.store.FetchCurrent(ctx, item.EntityType, item.EntityID)
			if ferr != nil {
				return eng.settleFailure(item, ferr, false)
			}
			return eng.settleConflict(item, cur, conflictmodel.ConflictTypeVersionMismatch)
		}
		return eng.settleFailure(item, err, remote.IsRejected(err))
	}

	return eng.settleSynced(item, nil, true)
}

// settleSynced records the success, writes server-assigned fields back to
// the producer cache and publishes the change
func (eng *Engine) settleSynced(item *sqmodel.SyncQueue, r *remote.Record,
	deleted bool) (outcome string) {
	eng.monitor.ReportSuccess()

	requeued, err := syncqueue.MarkSynced(eng.db, item.ID, item.PayloadHash)
	if err != nil {
		log.Error().Err(err).Msgf("mark synced %d failed", item.ID)
		return outcomeFailed
	}
	if requeued {
		log.Debug().Msgf("queue item %d coalesced mid-flight, requeued", item.ID)
	}

	// Write back the server id and version regardless of requeue, the
	// next attempt must carry the post-write base version
	if r != nil {
		if rc := eng.reconciler(item.EntityType); rc != nil {
			if err := rc.ApplyServer(eng.db, item.EntityID, r); err != nil {
				log.Error().Err(err).Msgf("reconcile %s %s failed",
					item.EntityType, item.EntityID)
			}
		}
	}

	version := item.ClientVersion
	if r != nil {
		version = r.Version
	}
	eng.broker.Publish(pubsub.Event{
		Type:    item.EntityType,
		ID:      item.EntityID,
		Deleted: deleted,
		Version: version,
	})

	return outcomeSynced
}

// settleFailure parks or requeues the item. A rejected write is terminal,
// anything transient retries with backoff until the attempt ceiling.
func (eng *Engine) settleFailure(item *sqmodel.SyncQueue, cause error,
	rejected bool) (outcome string) {
	if rejected {
		// The store responded, the link is fine
		eng.monitor.ReportSuccess()
	} else {
		eng.monitor.ReportFailure()
	}

	attempts := item.Attempts + 1
	terminal := rejected || attempts >= eng.cfg.MaxAttempts

	if err := syncqueue.MarkFailed(eng.db, item.ID, cause.Error(), terminal); err != nil {
		log.Error().Err(err).Msgf("mark failed %d failed", item.ID)
	}

	return outcomeFailed
}

// settleConflict records the conflict and parks the item. cur is nil when
// the record vanished server side.
func (eng *Engine) settleConflict(item *sqmodel.SyncQueue, cur *remote.Record,
	conflictType string) (outcome string) {
	eng.monitor.ReportSuccess()

	var serverData []byte
	var serverVersion int
	if cur != nil {
		serverData = cur.Payload
		serverVersion = cur.Version
	}

	if _, err := conflict.Create(eng.db, &conflict.CreateParam{
		QueueItemID:   item.ID,
		EntityType:    item.EntityType,
		EntityID:      item.EntityID,
		LocalData:     item.Payload,
		ServerData:    serverData,
		ServerVersion: serverVersion,
		ConflictType:  conflictType,
	}); err != nil {
		// The item must still settle or it strands in syncing until the
		// next restart
		log.Error().Err(err).Msgf("record conflict for %d failed", item.ID)
		terminal := item.Attempts+1 >= eng.cfg.MaxAttempts
		if merr := syncqueue.MarkFailed(eng.db, item.ID, err.Error(), terminal); merr != nil {
			log.Error().Err(merr).Msgf("mark failed %d failed", item.ID)
		}
		return outcomeFailed
	}

	return outcomeConflict
}

// ResolveConflict settles a recorded conflict. keep server overwrites the
// producer cache with the server copy through the registered reconciler
// before the conflict row is resolved, the other resolutions delegate to
// the conflict package.
func (eng *Engine) ResolveConflict(id, resolution string, mergedPayload []byte) (err error) {
	sc, err := conflict.Get(eng.db, id)
	if err != nil {
		return e.W(err, ECode090104)
	}

	if resolution == conflictmodel.ResolutionKeepServer {
		if rc := eng.reconciler(sc.EntityType); rc != nil && len(sc.ServerData) > 0 {
			if err := rc.ApplyServerData(eng.db, sc.EntityID, sc.ServerData); err != nil {
				return e.W(err, ECode090105)
			}
		}
	}

	if resolution == conflictmodel.ResolutionDismissed {
		if err := conflict.Dismiss(eng.db, id); err != nil {
			return e.W(err, ECode090106)
		}
	} else {
		if err := conflict.Resolve(eng.db, id, resolution, mergedPayload); err != nil {
			return e.W(err, ECode090107)
		}
	}

	eng.broker.Publish(pubsub.Event{
		Type:    sc.EntityType,
		ID:      sc.EntityID,
		Version: sc.ServerVersion,
	})

	// keep local and manual merge requeued a write, push it promptly
	if resolution == conflictmodel.ResolutionKeepLocal ||
		resolution == conflictmodel.ResolutionManualMerge {
		eng.TickNow()
	}

	return nil
}

// Stats snapshots queue depth, parked items and the last completed run
type Stats struct {
	Pending    int
	Failed     int
	Conflicts  int
	LastSyncAt string
	IsSyncing  bool
}

// Stats reports engine observability counters
func (eng *Engine) Stats() (st *Stats, err error) {
	st = &Stats{IsSyncing: eng.IsSyncing()}

	if st.Pending, err = syncqueue.PendingCount(eng.db); err != nil {
		return nil, e.W(err, ECode090108)
	}

	if st.Failed, err = syncqueue.FailedCount(eng.db); err != nil {
		return nil, e.W(err, ECode090109)
	}

	if st.Conflicts, err = conflict.PendingCount(eng.db); err != nil {
		return nil, e.W(err, ECode09010A)
	}

	sr, err := sqlmodel.SyncRunGetLatestCompleted(eng.db)
	if err != nil {
		return nil, e.W(err, ECode09010B)
	}
	if sr != nil {
		st.LastSyncAt = sr.CompletedOn
	}

	return st, nil
}
