// Package heldorder parks in-progress tickets so the till can serve the
// next customer. Held orders live only on this terminal; promoting one
// turns it into a real order that follows the normal sync path.
package heldorder

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/heldorder/model"
	"github.com/tillpoint/pos-lib/heldorder/sqlmodel"
	"github.com/tillpoint/pos-lib/order"
	ordermodel "github.com/tillpoint/pos-lib/order/model"
	"github.com/tillpoint/pos-lib/sql"
)

const (
	ECode0E0101 = e.Code0E01 + "01"
	ECode0E0102 = e.Code0E01 + "02"
	ECode0E0103 = e.Code0E01 + "03"
	ECode0E0104 = e.Code0E01 + "04"
	ECode0E0105 = e.Code0E01 + "05"
	ECode0E0106 = e.Code0E01 + "06"
	ECode0E0107 = e.Code0E01 + "07"
	ECode0E0108 = e.Code0E01 + "08"
)

// Hold parks the ticket and returns its id
func Hold(db *sql.Connection, h *model.HeldOrder) (id int, err error) {
	if len(h.Cart) == 0 {
		h.Cart = json.RawMessage("{}")
	}

	id, err = sqlmodel.HeldOrderInsert(db, h)
	if err != nil {
		return 0, e.W(err, ECode0E0101)
	}
	h.ID = id

	return id, nil
}

// Get returns the held order
func Get(db *sql.Connection, id int) (h *model.HeldOrder, err error) {
	h, err = sqlmodel.HeldOrderGetByID(db, id)
	if err != nil {
		return nil, e.W(err, ECode0E0102)
	}

	return h, nil
}

// ListByTerminal returns this terminal's held orders, oldest first
func ListByTerminal(db *sql.Connection, terminalID string) (hList []*model.HeldOrder, err error) {
	hList, _, err = sqlmodel.HeldOrderGet(db, &sqlmodel.HeldOrderGetParam{
		Limit:      1000,
		TerminalID: &terminalID,
	})
	if err != nil {
		return nil, e.W(err, ECode0E0103)
	}

	return hList, nil
}

// Delete discards the held order
func Delete(db *sql.Connection, id int) (err error) {
	if err := sqlmodel.HeldOrderDelete(db, id); err != nil {
		return e.W(err, ECode0E0104)
	}

	return nil
}

// Promote turns the held ticket into a real order through the order
// service, then removes the held row. If the removal fails the held order
// is left behind and must be discarded manually, the order itself is
// already saved.
func Promote(ctx context.Context, db *sql.Connection, svc *order.Service,
	id int) (o *ordermodel.Order, err error) {
	h, err := sqlmodel.HeldOrderGetByID(db, id)
	if err != nil {
		return nil, e.W(err, ECode0E0105)
	}

	o = &ordermodel.Order{
		Status:    ordermodel.OrderStatusNew,
		OrderType: ordermodel.OrderTypeDineIn,
		Notes:     h.Label,
		Cart:      h.Cart,
		Total:     h.Total,
		Subtotal:  h.Total,
	}

	if err := svc.Save(ctx, o); err != nil {
		return nil, e.W(err, ECode0E0106)
	}

	if err := sqlmodel.HeldOrderDelete(db, id); err != nil {
		log.Error().Err(err).Msgf("held order %d promoted as %s but not removed",
			id, o.ID)
		return o, e.W(err, ECode0E0107)
	}

	return o, nil
}

// Cleanup purges held orders created before the cutoff, on every terminal
func Cleanup(db *sql.Connection, cutoff string) (err error) {
	if err := sqlmodel.HeldOrderDeleteBefore(db, "", cutoff); err != nil {
		return e.W(err, ECode0E0108)
	}

	return nil
}
