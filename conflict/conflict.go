// Package conflict records queued writes the server refused because both
// sides changed. Conflicts park the queue item and wait for an explicit
// decision; nothing resolves automatically and rows are kept until purged.
package conflict

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tillpoint/pos-lib/conflict/model"
	"github.com/tillpoint/pos-lib/conflict/sqlmodel"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue"
	sqmodel "github.com/tillpoint/pos-lib/syncqueue/model"
)

const (
	ECode070101 = e.Code0701 + "01"
	ECode070102 = e.Code0701 + "02"
	ECode070103 = e.Code0701 + "03"
	ECode070104 = e.Code0701 + "04"
	ECode070105 = e.Code0701 + "05"
	ECode070106 = e.Code0701 + "06"
	ECode070107 = e.Code0701 + "07"
	ECode070108 = e.Code0701 + "08"
	ECode070109 = e.Code0701 + "09"
	ECode07010A = e.Code0701 + "0A"
	ECode07010B = e.Code0701 + "0B"
	ECode07010C = e.Code0701 + "0C"
	ECode07010D = e.Code0701 + "0D"
	ECode07010E = e.Code0701 + "0E"
	ECode07010F = e.Code0701 + "0F"
	ECode07010G = e.Code0701 + "0G"
)

// CreateParam describes a detected conflict
type CreateParam struct {
	QueueItemID   int
	EntityType    string
	EntityID      string
	LocalData     []byte
	ServerData    []byte
	ServerVersion int
	ConflictType  string
}

// Create records the conflict and parks the queue item. Called by the sync
// engine when a write fails conflict detection.
func Create(db *sql.Connection, p *CreateParam) (id string, err error) {
	id = uuid.NewString()

	tx, err := db.BeginReturnDB()
	if err != nil {
		return "", e.W(err, ECode070101)
	}
	defer db.RollbackIfInTxn()

	if err := sqlmodel.SyncConflictInsert(tx, &sqlmodel.SyncConflictInsertParam{
		ID:            id,
		QueueItemID:   p.QueueItemID,
		EntityType:    p.EntityType,
		EntityID:      p.EntityID,
		LocalData:     p.LocalData,
		ServerData:    p.ServerData,
		ServerVersion: p.ServerVersion,
		ConflictType:  p.ConflictType,
	}); err != nil {
		return "", e.W(err, ECode070102)
	}

	if err := syncqueue.MarkConflict(tx, p.QueueItemID, id); err != nil {
		return "", e.W(err, ECode070103)
	}

	if err := db.Commit(); err != nil {
		return "", e.W(err, ECode070104)
	}

	log.Warn().Msgf("sync conflict %s (%s) on %s/%s",
		id, p.ConflictType, p.EntityType, p.EntityID)

	return id, nil
}

// Get returns the conflict
func Get(db *sql.Connection, id string) (sc *model.SyncConflict, err error) {
	return sqlmodel.SyncConflictGetByID(db, id)
}

// ListPending returns unresolved conflicts, oldest first
func ListPending(db *sql.Connection) (scList []*model.SyncConflict, err error) {
	scList, _, err = sqlmodel.SyncConflictGet(db, &sqlmodel.SyncConflictGetParam{
		FlagPending: true,
	})
	if err != nil {
		return nil, e.W(err, ECode070105)
	}

	return scList, nil
}

// Resolve settles the conflict on the queue side:
//
//   - keep_local re-sends the local payload based on the server's current
//     version, so it overrides the server copy
//   - manual_merge is keep_local with the caller-supplied payload
//   - keep_server settles the queue item without sending; the caller is
//     responsible for overwriting the local cache from ServerData first
//
// Resolving an already resolved conflict fails with MsgConflictAlreadyResolved.
func Resolve(db *sql.Connection, id, resolution string, mergedPayload []byte) (err error) {
	sc, err := sqlmodel.SyncConflictGetByID(db, id)
	if err != nil {
		return e.W(err, ECode070106)
	}
	if sc.Resolved() {
		return e.N(ECode070107, e.MsgConflictAlreadyResolved)
	}

	tx, err := db.BeginReturnDB()
	if err != nil {
		return e.W(err, ECode070108)
	}
	defer db.RollbackIfInTxn()

	// When the server deleted the record, the retried write must recreate
	// it; an update would just re-detect the deletion
	op := ""
	if sc.ConflictType == model.ConflictTypeDeletedOnServer {
		op = sqmodel.SyncQueueOperationCreate
	}

	switch resolution {
	case model.ResolutionKeepLocal:
		err = syncqueue.Requeue(tx, sc.QueueItemID, sc.LocalData, sc.ServerVersion, op)
	case model.ResolutionManualMerge:
		err = syncqueue.Requeue(tx, sc.QueueItemID, mergedPayload, sc.ServerVersion, op)
	case model.ResolutionKeepServer:
		err = syncqueue.CompleteWithoutSync(tx, sc.QueueItemID)
	default:
		return e.N(ECode070109, "unknown resolution: "+resolution)
	}
	if err != nil {
		return e.W(err, ECode07010A)
	}

	ok, err := sqlmodel.SyncConflictResolve(tx, id, resolution)
	if err != nil {
		return e.W(err, ECode07010B)
	}
	if !ok {
		return e.N(ECode07010C, e.MsgConflictAlreadyResolved)
	}

	if err := db.Commit(); err != nil {
		return e.W(err, ECode07010D)
	}

	log.Info().Msgf("sync conflict %s resolved: %s", id, resolution)

	return nil
}

// Dismiss settles the conflict with no further action. The queue item stays
// terminal and the local cache is left as is.
func Dismiss(db *sql.Connection, id string) (err error) {
	ok, err := sqlmodel.SyncConflictResolve(db, id, model.ResolutionDismissed)
	if err != nil {
		return e.W(err, ECode07010E)
	}
	if !ok {
		return e.N(ECode07010F, e.MsgConflictAlreadyResolved)
	}

	return nil
}

// PendingCount returns the number of unresolved conflicts
func PendingCount(db *sql.Connection) (count int, err error) {
	_, count, err = sqlmodel.SyncConflictGet(db, &sqlmodel.SyncConflictGetParam{
		FlagPending: true,
		FlagCount:   true,
	})
	if err != nil {
		return 0, e.W(err, ECode07010G)
	}

	return count, nil
}

// PurgeResolved removes resolved conflicts older than the retention window
func PurgeResolved(db *sql.Connection, olderThan time.Duration) (n int, err error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(sql.DateTimeFormat)
	return sqlmodel.SyncConflictDeleteResolvedBefore(db, cutoff)
}
