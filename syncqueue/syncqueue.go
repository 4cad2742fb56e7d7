// Package syncqueue is the durable outbox for writes made while the
// terminal may be offline. Producers enqueue whole-record writes and the
// sync engine drains the queue when connectivity allows. Rows survive
// process restarts, one active row exists per entity, and failed attempts
// retry with backoff until the attempt cap makes them terminal.
package syncqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue/model"
	"github.com/tillpoint/pos-lib/syncqueue/sqlmodel"
)

const (
	ECode060101 = e.Code0601 + "01"
	ECode060102 = e.Code0601 + "02"
	ECode060103 = e.Code0601 + "03"
	ECode060104 = e.Code0601 + "04"
	ECode060105 = e.Code0601 + "05"
	ECode060106 = e.Code0601 + "06"
	ECode060107 = e.Code0601 + "07"
	ECode060108 = e.Code0601 + "08"
	ECode060109 = e.Code0601 + "09"
	ECode06010A = e.Code0601 + "0A"
	ECode06010B = e.Code0601 + "0B"
	ECode06010C = e.Code0601 + "0C"
	ECode06010D = e.Code0601 + "0D"
	ECode06010E = e.Code0601 + "0E"
	ECode06010F = e.Code0601 + "0F"
	ECode06010G = e.Code0601 + "0G"
	ECode06010H = e.Code0601 + "0H"
	ECode06010I = e.Code0601 + "0I"
	ECode06010J = e.Code0601 + "0J"
	ECode06010K = e.Code0601 + "0K"
	ECode06010L = e.Code0601 + "0L"
	ECode06010M = e.Code0601 + "0M"
	ECode06010N = e.Code0601 + "0N"
)

// EnqueueParam describes a write to queue for synchronization
type EnqueueParam struct {
	EntityType    string
	EntityID      string
	Operation     string
	Payload       []byte
	Priority      int
	ClientVersion int
}

// HashPayload returns the content hash used for idempotency checks
func HashPayload(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}

// Enqueue durably queues the write. If an active (pending or syncing) row
// already exists for the entity, the row is coalesced in place: the payload,
// hash, write token and priority are replaced and the operation merged, so
// at most one active row per entity remains. A delete
// over a pending create cancels both and returns id 0. The returned id is
// the queue row.
func Enqueue(db *sql.Connection, p *EnqueueParam) (id int, err error) {
	tx, err := db.BeginReturnDB()
	if err != nil {
		return 0, e.W(err, ECode060101)
	}
	defer db.RollbackIfInTxn()

	existing, err := sqlmodel.SyncQueueGetActiveByEntity(tx, p.EntityType, p.EntityID)
	if err != nil && !e.ContainsError(err, e.MsgSyncQueueItemDNE) {
		return 0, e.W(err, ECode060102)
	}

	hash := HashPayload(p.Payload)
	token := uuid.NewString()

	if existing != nil && err == nil {
		// Cancel out a delete over a create the server never saw
		if existing.Operation == model.SyncQueueOperationCreate &&
			p.Operation == model.SyncQueueOperationDelete &&
			existing.Status == model.SyncQueueStatusPending {
			if err := sqlmodel.SyncQueueDeleteByID(tx, existing.ID); err != nil {
				return 0, e.W(err, ECode060103)
			}
			if err := db.Commit(); err != nil {
				return 0, e.W(err, ECode060104)
			}
			return 0, nil
		}

		// The client version is NOT replaced: the remote write is still
		// based on the same server version no matter how many local
		// edits stack on top of it
		op := mergeOperation(existing.Operation, p.Operation)
		if err := sqlmodel.SyncQueueUpdate(tx, existing.ID, &sqlmodel.SyncQueueUpdateParam{
			Operation:   &op,
			Payload:     &p.Payload,
			PayloadHash: &hash,
			Priority:    &p.Priority,
			WriteToken:  &token,
		}); err != nil {
			return 0, e.W(err, ECode060105)
		}

		if err := db.Commit(); err != nil {
			return 0, e.W(err, ECode060106)
		}
		return existing.ID, nil
	}

	if err := ensureCapacity(tx); err != nil {
		return 0, e.W(err, ECode060107)
	}

	id, err = sqlmodel.SyncQueueInsert(tx, &sqlmodel.SyncQueueInsertParam{
		EntityType:    p.EntityType,
		EntityID:      p.EntityID,
		Operation:     p.Operation,
		Payload:       p.Payload,
		PayloadHash:   hash,
		Status:        model.SyncQueueStatusPending,
		Priority:      p.Priority,
		ClientVersion: p.ClientVersion,
		WriteToken:    token,
	})
	if err != nil {
		return 0, e.W(err, ECode060108)
	}

	if err := db.Commit(); err != nil {
		return 0, e.W(err, ECode060109)
	}

	return id, nil
}

// HasActive reports whether an active (pending or syncing) row exists for
// the entity. Producers use this to decide whether an immediate remote
// write would jump ahead of queued ones.
func HasActive(db *sql.Connection, entityType, entityID string) (active bool, err error) {
	if _, err = sqlmodel.SyncQueueGetActiveByEntity(db, entityType, entityID); err != nil {
		if e.ContainsError(err, e.MsgSyncQueueItemDNE) {
			return false, nil
		}
		return false, e.W(err, ECode06010N)
	}

	return true, nil
}

// mergeOperation combines a queued operation with a newly requested one so
// the single active row still produces the correct end state on the server.
// A delete over a pending create never reaches here, Enqueue cancels that
// pair outright.
func mergeOperation(queued, requested string) string {
	switch {
	case queued == model.SyncQueueOperationCreate &&
		requested == model.SyncQueueOperationDelete:
		// The create is in flight and may land, the requeued row must
		// undo it rather than re-create
		return model.SyncQueueOperationDelete
	case queued == model.SyncQueueOperationCreate:
		// Server has never seen the record
		return model.SyncQueueOperationCreate
	case queued == model.SyncQueueOperationDelete &&
		requested != model.SyncQueueOperationDelete:
		// Record still exists on the server, reinstate it
		return model.SyncQueueOperationUpdate
	default:
		return requested
	}
}

// ensureCapacity enforces the queue cap, reclaiming synced rows before
// rejecting the write
func ensureCapacity(db *sql.Connection) (err error) {
	count, err := sqlmodel.SyncQueueCount(db, nil)
	if err != nil {
		return e.W(err, ECode06010A)
	}

	if count < model.SyncQueueMaxSize {
		return nil
	}

	n, err := sqlmodel.SyncQueueDeleteSyncedBefore(db, "")
	if err != nil {
		return e.W(err, ECode06010B)
	}
	if n > 0 {
		log.Info().Msgf("sync queue full, reclaimed %d synced row(s)", n)
	}

	if count-n >= model.SyncQueueMaxSize {
		return e.N(ECode06010C, e.MsgSyncQueueFull)
	}

	return nil
}

// NextBatch returns up to limit pending items in dispatch order, skipping
// items still inside their retry backoff window
func NextBatch(db *sql.Connection, limit int) (batch []*model.SyncQueue, err error) {
	statusList := []string{model.SyncQueueStatusPending}
	maxAttempts := model.SyncQueueMaxAttempts

	items, _, err := sqlmodel.SyncQueueGet(db, &sqlmodel.SyncQueueGetParam{
		Status:         &statusList,
		AttemptsBelow:  &maxAttempts,
		FlagQueueOrder: true,
	})
	if err != nil {
		return nil, e.W(err, ECode06010D)
	}

	now := time.Now().UTC()
	for _, item := range items {
		if !eligible(item, now) {
			continue
		}
		batch = append(batch, item)
		if len(batch) == limit {
			break
		}
	}

	return batch, nil
}

// eligible reports whether the item's backoff window has elapsed
func eligible(item *model.SyncQueue, now time.Time) bool {
	if item.Attempts == 0 || item.LastAttemptOn == "" {
		return true
	}

	last, err := time.Parse(sql.DateTimeFormat, item.LastAttemptOn)
	if err != nil {
		// Unparseable attempt time, treat as eligible rather than
		// stranding the item
		return true
	}

	return now.Sub(last) >= model.BackoffDelay(item.Attempts)
}

// MarkSyncing transitions the item from pending to syncing, bumping the
// attempt count and stamping the attempt time. Fails with
// MsgSyncQueueItemNotPending if the row was already taken.
func MarkSyncing(db *sql.Connection, id int) (err error) {
	status := model.SyncQueueStatusSyncing
	now := sql.Now()

	ok, err := sqlmodel.SyncQueueTransition(db, id,
		[]string{model.SyncQueueStatusPending},
		&sqlmodel.SyncQueueUpdateParam{
			Status:           &status,
			FlagBumpAttempts: true,
			LastAttemptOn:    &now,
		})
	if err != nil {
		return e.W(err, ECode06010E)
	}
	if !ok {
		return e.N(ECode06010F, e.MsgSyncQueueItemNotPending)
	}

	return nil
}

// MarkSynced completes the item, but only if the payload is still the one
// that was sent. If the payload was coalesced mid flight, the row returns
// to pending so the newer payload syncs too; requeued reports that case.
func MarkSynced(db *sql.Connection, id int, payloadHash string) (requeued bool, err error) {
	synced := model.SyncQueueStatusSynced
	empty := ""

	ub := &sqlmodel.SyncQueueUpdateParam{
		Status:    &synced,
		LastError: &empty,
	}

	ok, err := sqlmodel.SyncQueueTransitionWithHash(db, id,
		[]string{model.SyncQueueStatusSyncing}, payloadHash, ub)
	if err != nil {
		return false, e.W(err, ECode06010G)
	}
	if ok {
		return false, nil
	}

	// Payload changed while the attempt was in flight
	pending := model.SyncQueueStatusPending
	if _, err := sqlmodel.SyncQueueTransition(db, id,
		[]string{model.SyncQueueStatusSyncing},
		&sqlmodel.SyncQueueUpdateParam{Status: &pending}); err != nil {
		return false, e.W(err, ECode06010H)
	}

	return true, nil
}

// MarkFailed records a failed attempt. Non-terminal failures return the
// item to pending for retry with backoff; terminal failures (attempt cap
// reached or permanent rejection) park it as failed.
func MarkFailed(db *sql.Connection, id int, reason string, terminal bool) (err error) {
	status := model.SyncQueueStatusPending
	if terminal {
		status = model.SyncQueueStatusFailed
	}

	ok, err := sqlmodel.SyncQueueTransition(db, id,
		[]string{model.SyncQueueStatusSyncing},
		&sqlmodel.SyncQueueUpdateParam{
			Status:    &status,
			LastError: &reason,
		})
	if err != nil {
		return e.W(err, ECode06010I)
	}
	if !ok {
		log.Warn().Msgf("sync queue item %d not syncing when marking failed", id)
	}

	return nil
}

// MarkConflict parks the item as conflicted, linking the conflict record
func MarkConflict(db *sql.Connection, id int, conflictID string) (err error) {
	status := model.SyncQueueStatusConflict

	if _, err := sqlmodel.SyncQueueTransition(db, id,
		[]string{model.SyncQueueStatusSyncing, model.SyncQueueStatusPending},
		&sqlmodel.SyncQueueUpdateParam{
			Status:     &status,
			ConflictID: &conflictID,
		}); err != nil {
		return e.W(err, ECode06010J)
	}

	return nil
}

// Requeue returns a conflicted item to pending with a fresh payload and
// client version, typically the server's current version so the retried
// write overrides it. Attempts reset, the write gets a new token. A blank
// operation keeps the queued one; resolving past a server side delete
// passes create, since an update would just re-detect the deletion.
func Requeue(db *sql.Connection, id int, payload []byte, clientVersion int,
	operation string) (err error) {
	status := model.SyncQueueStatusPending
	hash := HashPayload(payload)
	token := uuid.NewString()
	attempts := 0
	empty := ""

	up := &sqlmodel.SyncQueueUpdateParam{
		Status:        &status,
		Payload:       &payload,
		PayloadHash:   &hash,
		ClientVersion: &clientVersion,
		WriteToken:    &token,
		Attempts:      &attempts,
		LastError:     &empty,
		ConflictID:    &empty,
	}
	if operation != "" {
		up.Operation = &operation
	}

	ok, err := sqlmodel.SyncQueueTransition(db, id,
		[]string{model.SyncQueueStatusConflict}, up)
	if err != nil {
		return e.W(err, ECode06010K)
	}
	if !ok {
		return e.N(ECode06010L, e.MsgSyncQueueItemDNE)
	}

	return nil
}

// CompleteWithoutSync settles a conflicted item as synced without sending
// anything, used when a conflict resolves in the server's favor
func CompleteWithoutSync(db *sql.Connection, id int) (err error) {
	status := model.SyncQueueStatusSynced
	empty := ""

	if _, err := sqlmodel.SyncQueueTransition(db, id,
		[]string{model.SyncQueueStatusConflict},
		&sqlmodel.SyncQueueUpdateParam{
			Status:    &status,
			LastError: &empty,
		}); err != nil {
		return e.W(err, ECode06010M)
	}

	return nil
}

// GetByID returns the queue item
func GetByID(db *sql.Connection, id int) (item *model.SyncQueue, err error) {
	item, err = sqlmodel.SyncQueueGetByID(db, id)
	if err != nil {
		return nil, err
	}

	return item, nil
}

// PendingCount returns the number of pending items
func PendingCount(db *sql.Connection) (count int, err error) {
	return sqlmodel.SyncQueueCount(db, []string{model.SyncQueueStatusPending})
}

// FailedCount returns the number of terminally failed items
func FailedCount(db *sql.Connection) (count int, err error) {
	return sqlmodel.SyncQueueCount(db, []string{model.SyncQueueStatusFailed})
}

// Counts returns per-status item counts
func Counts(db *sql.Connection) (counts map[string]int, err error) {
	return sqlmodel.SyncQueueCountByStatus(db)
}

// CleanupSynced removes synced rows older than the retention window. A zero
// window removes all synced rows.
func CleanupSynced(db *sql.Connection, olderThan time.Duration) (n int, err error) {
	cutoff := ""
	if olderThan > 0 {
		cutoff = time.Now().UTC().Add(-olderThan).Format(sql.DateTimeFormat)
	}

	return sqlmodel.SyncQueueDeleteSyncedBefore(db, cutoff)
}

// RecoverOrphanedSyncing returns items stranded in syncing (crash mid
// attempt) to pending. Called once at engine startup.
func RecoverOrphanedSyncing(db *sql.Connection) (n int, err error) {
	n, err = sqlmodel.SyncQueueRecoverSyncing(db)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		log.Info().Msgf("recovered %d orphaned syncing item(s)", n)
	}

	return n, nil
}
