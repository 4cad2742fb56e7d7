package sqlmodel

import (
	"fmt"

	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncengine/model"
)

const (
	// SyncRunTable
	SyncRunTable = "pos_sync_run"

	ECode090301 = e.Code0903 + "01"
	ECode090302 = e.Code0903 + "02"
	ECode090303 = e.Code0903 + "03"
	ECode090304 = e.Code0903 + "04"
	ECode090305 = e.Code0903 + "05"
	ECode090306 = e.Code0903 + "06"
	ECode090307 = e.Code0903 + "07"
	ECode090308 = e.Code0903 + "08"
)

// SyncRunGetParam get params
type SyncRunGetParam struct {
	Limit          int
	Offset         int
	ID             *int
	Status         *string
	FlagCount      bool
	OrderByID      string
	OrderByStarted string
}

// SyncRunGet performs the DB query to return the list of sync runs
func SyncRunGet(db *sql.Connection, p *SyncRunGetParam) (srList []*model.SyncRun, count int, err error) {
	fields := `pos_sync_run_id, pos_sync_run_status, pos_sync_run_items_synced,
		pos_sync_run_items_failed, pos_sync_run_items_conflicted, pos_sync_run_error,
		started_on, completed_on`

	if p.Limit == 0 {
		p.Limit = 1
	}

	sb := db.Select(sql.FieldPlaceHolder).
		From(SyncRunTable).
		Limit(uint64(p.Limit))

	if p.ID != nil {
		sb = sb.Where("pos_sync_run_id = ?", *p.ID)
	}

	if p.Status != nil {
		sb = sb.Where("pos_sync_run_status = ?", *p.Status)
	}

	if p.FlagCount {
		// Get the count before applying an offset if there is one
		count, err = db.QueryCount(sb)
		if err != nil {
			return nil, 0, e.W(err, ECode090301)
		}
	}

	sb = sb.Offset(uint64(p.Offset))

	if p.OrderByID != "" {
		sb = sb.OrderBy(fmt.Sprintf("pos_sync_run_id %s", p.OrderByID))
	}

	if p.OrderByStarted != "" {
		sb = sb.OrderBy(fmt.Sprintf("started_on %s, pos_sync_run_id %s",
			p.OrderByStarted, p.OrderByStarted))
	}

	// Perform the query
	rows, err := db.ToSQLWFieldAndQuery(sb, fields)
	if err != nil {
		return nil, 0, e.W(err, ECode090302)
	}
	defer rows.Close()

	for rows.Next() {
		sr := &model.SyncRun{}
		if err := rows.Scan(&sr.ID, &sr.Status, &sr.ItemsSynced,
			&sr.ItemsFailed, &sr.ItemsConflicted, &sr.Error,
			&sr.StartedOn, &sr.CompletedOn); err != nil {
			return nil, 0, e.W(err, ECode090303)
		}

		srList = append(srList, sr)
	}

	return srList, count, nil
}

// SyncRunCreate inserts a new running record
func SyncRunCreate(db *sql.Connection) (id int, err error) {
	ib := db.Insert(SyncRunTable).
		Columns("pos_sync_run_status", "pos_sync_run_items_synced",
			"pos_sync_run_items_failed", "pos_sync_run_items_conflicted",
			"pos_sync_run_error", "started_on", "completed_on").
		Values(model.SyncRunStatusRunning, 0, 0, 0, "", sql.Now(), "").
		Suffix("RETURNING pos_sync_run_id")
	id, err = db.ExecInsertReturningID(ib)
	if err != nil {
		return 0, e.W(err, ECode090304)
	}

	return id, nil
}

// SyncRunComplete marks record as completed, recording the item tallies
func SyncRunComplete(db *sql.Connection, id, synced, failed, conflicted int) (err error) {
	ub := db.Update(SyncRunTable).
		Set("pos_sync_run_status", model.SyncRunStatusCompleted).
		Set("pos_sync_run_items_synced", synced).
		Set("pos_sync_run_items_failed", failed).
		Set("pos_sync_run_items_conflicted", conflicted).
		Set("completed_on", sql.Now()).
		Where("pos_sync_run_id = ?", id)

	if err := db.ExecUpdate(ub); err != nil {
		return e.W(err, ECode090305)
	}

	return nil
}

// SyncRunFail marks record as failed
func SyncRunFail(db *sql.Connection, id int, msg string, synced, failed, conflicted int) (err error) {
	ub := db.Update(SyncRunTable).
		Set("pos_sync_run_status", model.SyncRunStatusFailed).
		Set("pos_sync_run_items_synced", synced).
		Set("pos_sync_run_items_failed", failed).
		Set("pos_sync_run_items_conflicted", conflicted).
		Set("pos_sync_run_error", msg).
		Set("completed_on", sql.Now()).
		Where("pos_sync_run_id = ?", id)

	if err := db.ExecUpdate(ub); err != nil {
		return e.W(err, ECode090306)
	}

	return nil
}

// SyncRunGetLatestCompleted returns the most recently completed run, or
// nil if no run has completed yet
func SyncRunGetLatestCompleted(db *sql.Connection) (sr *model.SyncRun, err error) {
	status := model.SyncRunStatusCompleted
	srList, _, err := SyncRunGet(db, &SyncRunGetParam{
		Limit:          1,
		Status:         &status,
		OrderByStarted: "desc",
	})
	if err != nil {
		return nil, e.W(err, ECode090307)
	}

	if len(srList) == 0 {
		return nil, nil
	}

	return srList[0], nil
}

// SyncRunDeleteBefore purges runs that completed before the cutoff
func SyncRunDeleteBefore(db *sql.Connection, cutoff string) (err error) {
	delB := db.Delete(SyncRunTable).
		Where("pos_sync_run_status != ?", model.SyncRunStatusRunning).
		Where("completed_on < ?", cutoff)

	if err := db.ExecDelete(delB); err != nil {
		return e.W(err, ECode090308)
	}

	return nil
}
