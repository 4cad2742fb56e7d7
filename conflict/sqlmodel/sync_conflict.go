package sqlmodel

import (
	"fmt"
	"strings"

	"github.com/tillpoint/pos-lib/conflict/model"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/sql"
)

const (
	SyncConflictTableName     = "pos_sync_conflict"
	SyncConflictDefaultSortBy = "detected_on"

	ECode070301 = e.Code0703 + "01"
	ECode070302 = e.Code0703 + "02"
	ECode070303 = e.Code0703 + "03"
	ECode070304 = e.Code0703 + "04"
	ECode070305 = e.Code0703 + "05"
	ECode070306 = e.Code0703 + "06"
	ECode070307 = e.Code0703 + "07"
	ECode070308 = e.Code0703 + "08"
	ECode070309 = e.Code0703 + "09"
	ECode07030A = e.Code0703 + "0A"
	ECode07030B = e.Code0703 + "0B"
	ECode07030C = e.Code0703 + "0C"
	ECode07030D = e.Code0703 + "0D"
	ECode07030E = e.Code0703 + "0E"
	ECode07030F = e.Code0703 + "0F"
)

// SyncConflictGetParam model
type SyncConflictGetParam struct {
	Limit        *uint64
	Offset       *uint64
	ID           *string
	EntityType   *string
	EntityID     *string
	FlagPending  bool
	FlagCount    bool
	OrderByIDAsc bool
	DataHandler  func(*model.SyncConflict) error
}

// SyncConflictInsertParam insert params
type SyncConflictInsertParam struct {
	ID            string
	QueueItemID   int
	EntityType    string
	EntityID      string
	LocalData     []byte
	ServerData    []byte
	ServerVersion int
	ConflictType  string
}

// SyncConflictInsert performs insert. ServerData is empty when the record
// vanished server side.
func SyncConflictInsert(db *sql.Connection, ip *SyncConflictInsertParam) (err error) {
	if ip.ServerData == nil {
		ip.ServerData = []byte{}
	}

	ib := db.Insert(SyncConflictTableName).
		Columns(`pos_sync_conflict_id, pos_sync_conflict_queue_item_id,
			pos_sync_conflict_entity_type, pos_sync_conflict_entity_id,
			pos_sync_conflict_local_data, pos_sync_conflict_server_data,
			pos_sync_conflict_server_version, pos_sync_conflict_type,
			pos_sync_conflict_resolution, detected_on, resolved_on`).
		Values(ip.ID, ip.QueueItemID,
			ip.EntityType, ip.EntityID,
			ip.LocalData, ip.ServerData,
			ip.ServerVersion, ip.ConflictType,
			"", sql.Now(), "")

	if err := db.ExecInsert(ib); err != nil {
		return e.W(err, ECode070301,
			fmt.Sprintf("entity: %s/%s, type: %s",
				ip.EntityType, ip.EntityID, ip.ConflictType))
	}

	return nil
}

// SyncConflictResolve marks the conflict resolved. Returns whether the row
// was still unresolved, so double resolution is detected.
func SyncConflictResolve(db *sql.Connection, id, resolution string) (ok bool, err error) {
	ub := db.Update(SyncConflictTableName).
		Set("pos_sync_conflict_resolution", resolution).
		Set("resolved_on", sql.Now()).
		Where("pos_sync_conflict_id=?", id).
		Where("resolved_on=''")

	stmt, bindList, err := ub.ToSql()
	if err != nil {
		return false, e.W(err, ECode070302)
	}

	res, err := db.Exec(stmt, bindList...)
	if err != nil {
		return false, e.W(err, ECode070303, fmt.Sprintf("id: %s", id))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, e.W(err, ECode070304)
	}

	return n > 0, nil
}

// SyncConflictGet performs select
func SyncConflictGet(db *sql.Connection,
	p *SyncConflictGetParam) (scList []*model.SyncConflict, count int, err error) {
	fields := `pos_sync_conflict_id, pos_sync_conflict_queue_item_id,
		pos_sync_conflict_entity_type, pos_sync_conflict_entity_id,
		pos_sync_conflict_local_data, pos_sync_conflict_server_data,
		pos_sync_conflict_server_version, pos_sync_conflict_type,
		pos_sync_conflict_resolution, detected_on, resolved_on`

	sb := db.Select("{fields}").
		From(SyncConflictTableName)

	if p.Limit != nil && *p.Limit > 0 {
		sb = sb.Limit(*p.Limit)
	}

	if p.ID != nil && len(*p.ID) > 0 {
		sb = sb.Where("pos_sync_conflict_id=?", *p.ID)
	}

	if p.EntityType != nil && len(*p.EntityType) > 0 {
		sb = sb.Where("pos_sync_conflict_entity_type=?", *p.EntityType)
	}

	if p.EntityID != nil && len(*p.EntityID) > 0 {
		sb = sb.Where("pos_sync_conflict_entity_id=?", *p.EntityID)
	}

	if p.FlagPending {
		sb = sb.Where("resolved_on=''")
	}

	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, 0, e.W(err, ECode070305)
	}

	if p.FlagCount {
		row := db.QueryRow(strings.Replace(stmt, "{fields}", "count(*)", 1), bindList...)
		if err := row.Scan(&count); err != nil {
			return nil, 0, e.W(err, ECode070306,
				fmt.Sprintf("stmt: %s, bindList: %+v", stmt, bindList))
		}
	}

	if p.Offset != nil {
		sb = sb.Offset(uint64(*p.Offset))
	}

	sb = sb.OrderBy(fmt.Sprintf("%s %s", SyncConflictDefaultSortBy, "asc"))

	stmt, bindList, err = sb.ToSql()
	if err != nil {
		return nil, 0, e.W(err, ECode070307)
	}
	stmt = strings.Replace(stmt, "{fields}", fields, 1)
	rows, err := db.Query(stmt, bindList...)
	if err != nil {
		return nil, 0, e.W(err, ECode070308)
	}
	defer rows.Close()

	for rows.Next() {
		sc := &model.SyncConflict{}
		if err := rows.Scan(&sc.ID, &sc.QueueItemID,
			&sc.EntityType, &sc.EntityID,
			&sc.LocalData, &sc.ServerData,
			&sc.ServerVersion, &sc.ConflictType,
			&sc.Resolution, &sc.DetectedOn, &sc.ResolvedOn); err != nil {
			return nil, 0, e.W(err, ECode070309)
		}

		if p.DataHandler != nil {
			if err := p.DataHandler(sc); err != nil {
				return nil, 0, e.W(err, ECode07030A)
			}
		} else {
			scList = append(scList, sc)
		}
	}

	return scList, count, nil
}

// SyncConflictGetByID returns the conflict with the specified id
func SyncConflictGetByID(db *sql.Connection, id string) (sc *model.SyncConflict, err error) {
	limit := uint64(1)
	p := &SyncConflictGetParam{
		Limit: &limit,
		ID:    &id,
	}

	scList, _, err := SyncConflictGet(db, p)
	if err != nil {
		return nil, e.W(err, ECode07030B)
	}

	if len(scList) == 0 {
		return nil, e.N(ECode07030C, e.MsgConflictDNE)
	}

	return scList[0], nil
}

// SyncConflictDeleteResolvedBefore removes resolved rows whose resolution
// time is at or before the cutoff
func SyncConflictDeleteResolvedBefore(db *sql.Connection, cutoff string) (n int, err error) {
	delB := db.Delete(SyncConflictTableName).
		Where("resolved_on<>''").
		Where("resolved_on<=?", cutoff)

	stmt, bindList, err := delB.ToSql()
	if err != nil {
		return 0, e.W(err, ECode07030D)
	}

	res, err := db.Exec(stmt, bindList...)
	if err != nil {
		return 0, e.W(err, ECode07030E)
	}

	rowCount, err := res.RowsAffected()
	if err != nil {
		return 0, e.W(err, ECode07030F)
	}

	return int(rowCount), nil
}
