package sqlmodel

import (
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/heldorder/model"
	"github.com/tillpoint/pos-lib/sql"
)

const (
	// HeldOrderTable
	HeldOrderTable = "pos_held_order"

	ECode0E0201 = e.Code0E02 + "01"
	ECode0E0202 = e.Code0E02 + "02"
	ECode0E0203 = e.Code0E02 + "03"
	ECode0E0204 = e.Code0E02 + "04"
	ECode0E0205 = e.Code0E02 + "05"
	ECode0E0206 = e.Code0E02 + "06"
	ECode0E0207 = e.Code0E02 + "07"
	ECode0E0208 = e.Code0E02 + "08"
)

// HeldOrderGetParam get params
type HeldOrderGetParam struct {
	Limit      int
	Offset     int
	ID         *int
	TerminalID *string
	FlagCount  bool
}

// HeldOrderGet performs the DB query to return the list of held orders,
// oldest first
func HeldOrderGet(db *sql.Connection, p *HeldOrderGetParam) (hList []*model.HeldOrder, count int, err error) {
	fields := `pos_held_order_id, terminal_id, label, cart, total, created_on`

	if p.Limit == 0 {
		p.Limit = 1
	}

	sb := db.Select(sql.FieldPlaceHolder).
		From(HeldOrderTable).
		OrderBy("created_on asc, pos_held_order_id asc").
		Limit(uint64(p.Limit))

	if p.ID != nil {
		sb = sb.Where("pos_held_order_id = ?", *p.ID)
	}

	if p.TerminalID != nil {
		sb = sb.Where("terminal_id = ?", *p.TerminalID)
	}

	if p.FlagCount {
		count, err = db.QueryCount(sb)
		if err != nil {
			return nil, 0, e.W(err, ECode0E0201)
		}
	}

	sb = sb.Offset(uint64(p.Offset))

	rows, err := db.ToSQLWFieldAndQuery(sb, fields)
	if err != nil {
		return nil, 0, e.W(err, ECode0E0202)
	}
	defer rows.Close()

	for rows.Next() {
		h := &model.HeldOrder{}
		if err := rows.Scan(&h.ID, &h.TerminalID, &h.Label, &h.Cart,
			&h.Total, &h.CreatedOn); err != nil {
			return nil, 0, e.W(err, ECode0E0203)
		}

		hList = append(hList, h)
	}

	return hList, count, nil
}

// HeldOrderGetByID returns the held order or a held order does not exist
// error
func HeldOrderGetByID(db *sql.Connection, id int) (h *model.HeldOrder, err error) {
	hList, _, err := HeldOrderGet(db, &HeldOrderGetParam{
		Limit: 1,
		ID:    &id,
	})
	if err != nil {
		return nil, e.W(err, ECode0E0204)
	}

	if len(hList) == 0 {
		return nil, e.N(ECode0E0205, e.MsgHeldOrderDNE)
	}

	return hList[0], nil
}

// HeldOrderInsert inserts a new record
func HeldOrderInsert(db *sql.Connection, h *model.HeldOrder) (id int, err error) {
	ib := db.Insert(HeldOrderTable).
		Columns("terminal_id", "label", "cart", "total", "created_on").
		Values(h.TerminalID, h.Label, []byte(h.Cart), h.Total, sql.Now()).
		Suffix("RETURNING pos_held_order_id")
	id, err = db.ExecInsertReturningID(ib)
	if err != nil {
		return 0, e.W(err, ECode0E0206)
	}

	return id, nil
}

// HeldOrderDelete deletes the record
func HeldOrderDelete(db *sql.Connection, id int) (err error) {
	delB := db.Delete(HeldOrderTable).
		Where("pos_held_order_id = ?", id)

	if err := db.ExecDelete(delB); err != nil {
		return e.W(err, ECode0E0207)
	}

	return nil
}

// HeldOrderDeleteBefore purges held orders created before the cutoff. A
// blank terminal id purges across terminals.
func HeldOrderDeleteBefore(db *sql.Connection, terminalID, cutoff string) (err error) {
	delB := db.Delete(HeldOrderTable).
		Where("created_on < ?", cutoff)

	if terminalID != "" {
		delB = delB.Where("terminal_id = ?", terminalID)
	}

	if err := db.ExecDelete(delB); err != nil {
		return e.W(err, ECode0E0208)
	}

	return nil
}
