package sqlmodel

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncqueue/model"
)

const (
	SyncQueueTableName     = "pos_sync_queue"
	SyncQueueDefaultSortBy = "pos_sync_queue_id"

	ECode060301 = e.Code0603 + "01"
	ECode060302 = e.Code0603 + "02"
	ECode060303 = e.Code0603 + "03"
	ECode060304 = e.Code0603 + "04"
	ECode060305 = e.Code0603 + "05"
	ECode060306 = e.Code0603 + "06"
	ECode060307 = e.Code0603 + "07"
	ECode060308 = e.Code0603 + "08"
	ECode060309 = e.Code0603 + "09"
	ECode06030A = e.Code0603 + "0A"
	ECode06030B = e.Code0603 + "0B"
	ECode06030C = e.Code0603 + "0C"
	ECode06030D = e.Code0603 + "0D"
	ECode06030E = e.Code0603 + "0E"
	ECode06030F = e.Code0603 + "0F"
	ECode06030G = e.Code0603 + "0G"
	ECode06030H = e.Code0603 + "0H"
	ECode06030I = e.Code0603 + "0I"
	ECode06030J = e.Code0603 + "0J"
	ECode06030K = e.Code0603 + "0K"
	ECode06030L = e.Code0603 + "0L"
	ECode06030M = e.Code0603 + "0M"
	ECode06030N = e.Code0603 + "0N"
	ECode06030O = e.Code0603 + "0O"
	ECode06030P = e.Code0603 + "0P"
	ECode06030Q = e.Code0603 + "0Q"
	ECode06030R = e.Code0603 + "0R"
	ECode06030S = e.Code0603 + "0S"
	ECode06030T = e.Code0603 + "0T"
)

// SyncQueueGetParam model
type SyncQueueGetParam struct {
	Limit            *uint64
	Offset           *uint64
	ID               *int
	EntityType       *string
	EntityID         *string
	Status           *[]string
	AttemptsBelow    *int
	FlagCount        bool
	FlagQueueOrder   bool
	OrderByID        string
	OrderByCreatedOn string
	DataHandler      func(*model.SyncQueue) error
}

// SyncQueueInsertParam insert params
type SyncQueueInsertParam struct {
	EntityType    string
	EntityID      string
	Operation     string
	Payload       []byte
	PayloadHash   string
	Status        string
	Priority      int
	ClientVersion int
	WriteToken    string
}

// SyncQueueUpdateParam update params
type SyncQueueUpdateParam struct {
	Operation        *string
	Payload          *[]byte
	PayloadHash      *string
	Status           *string
	Priority         *int
	Attempts         *int
	FlagBumpAttempts bool
	LastError        *string
	ClientVersion    *int
	WriteToken       *string
	ConflictID       *string
	LastAttemptOn    *string
}

// SyncQueueInsert performs insert
func SyncQueueInsert(db *sql.Connection, ip *SyncQueueInsertParam) (id int, err error) {
	ib := db.Insert(SyncQueueTableName).
		Columns(`pos_sync_queue_entity_type, pos_sync_queue_entity_id,
			pos_sync_queue_operation, pos_sync_queue_payload, pos_sync_queue_payload_hash,
			pos_sync_queue_status, pos_sync_queue_priority, pos_sync_queue_attempts,
			pos_sync_queue_last_error, pos_sync_queue_client_version,
			pos_sync_queue_write_token, pos_sync_queue_conflict_id,
			created_on, last_attempt_on`).
		Values(ip.EntityType, ip.EntityID,
			ip.Operation, ip.Payload, ip.PayloadHash,
			ip.Status, ip.Priority, 0,
			"", ip.ClientVersion,
			ip.WriteToken, "",
			sql.Now(), "").
		Suffix("RETURNING pos_sync_queue_id")

	id, err = db.ExecInsertReturningID(ib)
	if err != nil {
		return 0, e.W(err, ECode060301,
			fmt.Sprintf("entity: %s/%s, operation: %s",
				ip.EntityType, ip.EntityID, ip.Operation))
	}

	return id, nil
}

// SyncQueueUpdate performs update
func SyncQueueUpdate(db *sql.Connection, id int, up *SyncQueueUpdateParam) (err error) {
	if up == nil {
		return nil // Nothing to update
	}

	ub := applyUpdateParam(db.Update(SyncQueueTableName), up).
		Where("pos_sync_queue_id=?", id)

	if err := db.ExecUpdate(ub); err != nil {
		return e.W(err, ECode060302, fmt.Sprintf("id: %d", id))
	}

	return nil
}

// SyncQueueTransition performs a guarded update that only applies while the
// row is still in one of the from statuses. Returns whether a row changed,
// so callers can detect the row being taken by someone else.
func SyncQueueTransition(db *sql.Connection, id int, fromStatus []string,
	up *SyncQueueUpdateParam) (ok bool, err error) {

	ub := applyUpdateParam(db.Update(SyncQueueTableName), up).
		Where("pos_sync_queue_id=?", id).
		Where(sq.Eq{"pos_sync_queue_status": fromStatus})

	stmt, bindList, err := ub.ToSql()
	if err != nil {
		return false, e.W(err, ECode060303)
	}

	res, err := db.Exec(stmt, bindList...)
	if err != nil {
		return false, e.W(err, ECode060304, fmt.Sprintf("id: %d", id))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, e.W(err, ECode060305)
	}

	return n > 0, nil
}

// SyncQueueTransitionWithHash is SyncQueueTransition additionally guarded
// on the payload hash, so a completion only lands if the payload is still
// the one the attempt sent
func SyncQueueTransitionWithHash(db *sql.Connection, id int, fromStatus []string,
	payloadHash string, up *SyncQueueUpdateParam) (ok bool, err error) {

	ub := applyUpdateParam(db.Update(SyncQueueTableName), up).
		Where("pos_sync_queue_id=?", id).
		Where("pos_sync_queue_payload_hash=?", payloadHash).
		Where(sq.Eq{"pos_sync_queue_status": fromStatus})

	stmt, bindList, err := ub.ToSql()
	if err != nil {
		return false, e.W(err, ECode06030R)
	}

	res, err := db.Exec(stmt, bindList...)
	if err != nil {
		return false, e.W(err, ECode06030S, fmt.Sprintf("id: %d", id))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, e.W(err, ECode06030T)
	}

	return n > 0, nil
}

// applyUpdateParam applies the set fields to the update builder
func applyUpdateParam(ub sq.UpdateBuilder, up *SyncQueueUpdateParam) sq.UpdateBuilder {
	if up.Operation != nil {
		ub = ub.Set("pos_sync_queue_operation", *up.Operation)
	}
	if up.Payload != nil {
		ub = ub.Set("pos_sync_queue_payload", *up.Payload)
	}
	if up.PayloadHash != nil {
		ub = ub.Set("pos_sync_queue_payload_hash", *up.PayloadHash)
	}
	if up.Status != nil {
		ub = ub.Set("pos_sync_queue_status", *up.Status)
	}
	if up.Priority != nil {
		ub = ub.Set("pos_sync_queue_priority", *up.Priority)
	}
	if up.Attempts != nil {
		ub = ub.Set("pos_sync_queue_attempts", *up.Attempts)
	}
	if up.FlagBumpAttempts {
		ub = ub.Set("pos_sync_queue_attempts",
			sq.Expr("pos_sync_queue_attempts + 1"))
	}
	if up.LastError != nil {
		ub = ub.Set("pos_sync_queue_last_error", *up.LastError)
	}
	if up.ClientVersion != nil {
		ub = ub.Set("pos_sync_queue_client_version", *up.ClientVersion)
	}
	if up.WriteToken != nil {
		ub = ub.Set("pos_sync_queue_write_token", *up.WriteToken)
	}
	if up.ConflictID != nil {
		ub = ub.Set("pos_sync_queue_conflict_id", *up.ConflictID)
	}
	if up.LastAttemptOn != nil {
		ub = ub.Set("last_attempt_on", *up.LastAttemptOn)
	}

	return ub
}

// SyncQueueGet performs select
func SyncQueueGet(db *sql.Connection,
	p *SyncQueueGetParam) (sqList []*model.SyncQueue, count int, err error) {
	fields := `pos_sync_queue_id, pos_sync_queue_entity_type, pos_sync_queue_entity_id,
		pos_sync_queue_operation, pos_sync_queue_payload, pos_sync_queue_payload_hash,
		pos_sync_queue_status, pos_sync_queue_priority, pos_sync_queue_attempts,
		pos_sync_queue_last_error, pos_sync_queue_client_version,
		pos_sync_queue_write_token, pos_sync_queue_conflict_id,
		created_on, last_attempt_on`

	sb := db.Select("{fields}").
		From(SyncQueueTableName)

	if p.Limit != nil && *p.Limit > 0 {
		sb = sb.Limit(*p.Limit)
	}

	if p.ID != nil && *p.ID >= 0 {
		sb = sb.Where("pos_sync_queue_id=?", *p.ID)
	}

	if p.EntityType != nil && len(*p.EntityType) > 0 {
		sb = sb.Where("pos_sync_queue_entity_type=?", *p.EntityType)
	}

	if p.EntityID != nil && len(*p.EntityID) > 0 {
		sb = sb.Where("pos_sync_queue_entity_id=?", *p.EntityID)
	}

	if p.Status != nil && len(*p.Status) > 0 {
		sb = sb.Where(sq.Eq{"pos_sync_queue_status": *p.Status})
	}

	if p.AttemptsBelow != nil {
		sb = sb.Where("pos_sync_queue_attempts < ?", *p.AttemptsBelow)
	}

	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, 0, e.W(err, ECode060306)
	}

	if p.FlagCount {
		row := db.QueryRow(strings.Replace(stmt, "{fields}", "count(*)", 1), bindList...)
		if err := row.Scan(&count); err != nil {
			return nil, 0, e.W(err, ECode060307,
				fmt.Sprintf("stmt: %s, bindList: %+v", stmt, bindList))
		}
	}

	if p.Offset != nil {
		sb = sb.Offset(uint64(*p.Offset))
	}

	orderByDefault := true

	if p.FlagQueueOrder {
		// Dispatch order: financial first, then oldest, id as tie break
		sb = sb.OrderBy("pos_sync_queue_priority asc",
			"created_on asc", "pos_sync_queue_id asc")
		orderByDefault = false
	}

	if p.OrderByID != "" {
		sb = sb.OrderBy(fmt.Sprintf("pos_sync_queue_id %s", p.OrderByID))
		orderByDefault = false
	}

	if p.OrderByCreatedOn != "" {
		sb = sb.OrderBy(fmt.Sprintf("created_on %s", p.OrderByCreatedOn))
		orderByDefault = false
	}

	if orderByDefault {
		sb = sb.OrderBy(fmt.Sprintf("%s %s", SyncQueueDefaultSortBy, "asc"))
	}

	stmt, bindList, err = sb.ToSql()
	if err != nil {
		return nil, 0, e.W(err, ECode060308)
	}
	stmt = strings.Replace(stmt, "{fields}", fields, 1)
	rows, err := db.Query(stmt, bindList...)
	if err != nil {
		return nil, 0, e.W(err, ECode060309)
	}
	defer rows.Close()

	for rows.Next() {
		item := &model.SyncQueue{}
		if err := rows.Scan(&item.ID, &item.EntityType, &item.EntityID,
			&item.Operation, &item.Payload, &item.PayloadHash,
			&item.Status, &item.Priority, &item.Attempts,
			&item.LastError, &item.ClientVersion,
			&item.WriteToken, &item.ConflictID,
			&item.CreatedOn, &item.LastAttemptOn); err != nil {
			return nil, 0, e.W(err, ECode06030A)
		}

		if p.DataHandler != nil {
			if err := p.DataHandler(item); err != nil {
				return nil, 0, e.W(err, ECode06030B)
			}
		} else {
			sqList = append(sqList, item)
		}
	}

	return sqList, count, nil
}

// SyncQueueGetByID returns the item with the specified id
func SyncQueueGetByID(db *sql.Connection, id int) (item *model.SyncQueue, err error) {
	limit := uint64(1)
	p := &SyncQueueGetParam{
		Limit: &limit,
		ID:    &id,
	}

	sqList, _, err := SyncQueueGet(db, p)
	if err != nil {
		return nil, e.W(err, ECode06030C)
	}

	if len(sqList) == 0 {
		return nil, e.N(ECode06030D, e.MsgSyncQueueItemDNE)
	}

	return sqList[0], nil
}

// SyncQueueGetActiveByEntity returns the pending or syncing item for the
// entity, if one exists. At most one such row exists per entity.
func SyncQueueGetActiveByEntity(db *sql.Connection, entityType,
	entityID string) (item *model.SyncQueue, err error) {
	limit := uint64(1)
	statusList := []string{model.SyncQueueStatusPending, model.SyncQueueStatusSyncing}
	p := &SyncQueueGetParam{
		Limit:      &limit,
		EntityType: &entityType,
		EntityID:   &entityID,
		Status:     &statusList,
	}

	sqList, _, err := SyncQueueGet(db, p)
	if err != nil {
		return nil, e.W(err, ECode06030E)
	}

	if len(sqList) == 0 {
		return nil, e.N(ECode06030F, e.MsgSyncQueueItemDNE)
	}

	return sqList[0], nil
}

// SyncQueueCount returns the number of rows, optionally restricted to the
// specified statuses
func SyncQueueCount(db *sql.Connection, statusList []string) (count int, err error) {
	sb := db.Select("count(*)").
		From(SyncQueueTableName)

	if len(statusList) > 0 {
		sb = sb.Where(sq.Eq{"pos_sync_queue_status": statusList})
	}

	row, err := db.ToSQLAndQueryRow(sb)
	if err != nil {
		return 0, e.W(err, ECode06030G)
	}

	if err := row.Scan(&count); err != nil {
		return 0, e.W(err, ECode06030H)
	}

	return count, nil
}

// SyncQueueCountByStatus returns per-status row counts
func SyncQueueCountByStatus(db *sql.Connection) (counts map[string]int, err error) {
	sb := db.Select("pos_sync_queue_status, count(*)").
		From(SyncQueueTableName).
		GroupBy("pos_sync_queue_status")

	rows, err := db.ToSQLAndQuery(sb)
	if err != nil {
		return nil, e.W(err, ECode06030I)
	}
	defer rows.Close()

	counts = map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, e.W(err, ECode06030J)
		}
		counts[status] = count
	}

	return counts, nil
}

// SyncQueueDeleteSyncedBefore removes synced rows whose last attempt is at
// or before the cutoff. A blank cutoff removes all synced rows.
func SyncQueueDeleteSyncedBefore(db *sql.Connection, cutoff string) (n int, err error) {
	delB := db.Delete(SyncQueueTableName).
		Where("pos_sync_queue_status=?", model.SyncQueueStatusSynced)

	if cutoff != "" {
		delB = delB.Where("last_attempt_on<=?", cutoff)
	}

	stmt, bindList, err := delB.ToSql()
	if err != nil {
		return 0, e.W(err, ECode06030L)
	}

	res, err := db.Exec(stmt, bindList...)
	if err != nil {
		return 0, e.W(err, ECode06030M)
	}

	rowCount, err := res.RowsAffected()
	if err != nil {
		return 0, e.W(err, ECode06030N)
	}

	return int(rowCount), nil
}

// SyncQueueRecoverSyncing returns syncing rows to pending. Used at startup
// to recover items orphaned by a crash mid attempt.
func SyncQueueRecoverSyncing(db *sql.Connection) (n int, err error) {
	ub := db.Update(SyncQueueTableName).
		Set("pos_sync_queue_status", model.SyncQueueStatusPending).
		Where("pos_sync_queue_status=?", model.SyncQueueStatusSyncing)

	stmt, bindList, err := ub.ToSql()
	if err != nil {
		return 0, e.W(err, ECode06030O)
	}

	res, err := db.Exec(stmt, bindList...)
	if err != nil {
		return 0, e.W(err, ECode06030P)
	}

	rowCount, err := res.RowsAffected()
	if err != nil {
		return 0, e.W(err, ECode06030Q)
	}

	return int(rowCount), nil
}

// SyncQueueDeleteByID removes the row
func SyncQueueDeleteByID(db *sql.Connection, id int) (err error) {
	delB := db.Delete(SyncQueueTableName).
		Where("pos_sync_queue_id=?", id)

	if err := db.ExecDelete(delB); err != nil {
		return e.W(err, ECode06030K, fmt.Sprintf("id: %d", id))
	}

	return nil
}
