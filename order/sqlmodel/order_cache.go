package sqlmodel

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/order/model"
	"github.com/tillpoint/pos-lib/sql"
)

const (
	// OrderCacheTable
	OrderCacheTable = "pos_order_cache"

	ECode0C0201 = e.Code0C02 + "01"
	ECode0C0202 = e.Code0C02 + "02"
	ECode0C0203 = e.Code0C02 + "03"
	ECode0C0204 = e.Code0C02 + "04"
	ECode0C0205 = e.Code0C02 + "05"
	ECode0C0206 = e.Code0C02 + "06"
	ECode0C0207 = e.Code0C02 + "07"
	ECode0C0208 = e.Code0C02 + "08"
	ECode0C0209 = e.Code0C02 + "09"
)

// OrderGetParam get params
type OrderGetParam struct {
	Limit            int
	Offset           int
	ID               *string
	Status           *[]string
	FlagCount        bool
	OrderByCreatedOn string
	DataHandler      func(*model.Order) error
}

// OrderGet performs the DB query to return the list of cached orders
func OrderGet(db *sql.Connection, p *OrderGetParam) (oList []*model.Order, count int, err error) {
	fields := `pos_order_cache_id, server_id, order_number, order_status,
		order_type, subtotal, tax_amount, discount_amount, total, customer_id,
		table_number, notes, cart, version, created_on, updated_on`

	if p.Limit == 0 {
		p.Limit = 1
	}

	sb := db.Select(sql.FieldPlaceHolder).
		From(OrderCacheTable).
		Limit(uint64(p.Limit))

	if p.ID != nil {
		sb = sb.Where("pos_order_cache_id = ?", *p.ID)
	}

	if p.Status != nil {
		sb = sb.Where(sq.Eq{"order_status": *p.Status})
	}

	if p.FlagCount {
		count, err = db.QueryCount(sb)
		if err != nil {
			return nil, 0, e.W(err, ECode0C0201)
		}
	}

	sb = sb.Offset(uint64(p.Offset))

	if p.OrderByCreatedOn != "" {
		sb = sb.OrderBy(fmt.Sprintf("created_on %s", p.OrderByCreatedOn))
	}

	rows, err := db.ToSQLWFieldAndQuery(sb, fields)
	if err != nil {
		return nil, 0, e.W(err, ECode0C0202)
	}
	defer rows.Close()

	for rows.Next() {
		o := &model.Order{}
		if err := rows.Scan(&o.ID, &o.ServerID, &o.OrderNumber, &o.Status,
			&o.OrderType, &o.Subtotal, &o.TaxAmount, &o.DiscountAmount,
			&o.Total, &o.CustomerID, &o.TableNumber, &o.Notes, &o.Cart,
			&o.Version, &o.CreatedOn, &o.UpdatedOn); err != nil {
			return nil, 0, e.W(err, ECode0C0203)
		}

		if p.DataHandler != nil {
			if err := p.DataHandler(o); err != nil {
				return nil, 0, e.W(err, ECode0C0204)
			}
		} else {
			oList = append(oList, o)
		}
	}

	return oList, count, nil
}

// OrderGetByID returns the cached order or an order does not exist error
func OrderGetByID(db *sql.Connection, id string) (o *model.Order, err error) {
	oList, _, err := OrderGet(db, &OrderGetParam{
		Limit: 1,
		ID:    &id,
	})
	if err != nil {
		return nil, e.W(err, ECode0C0205)
	}

	if len(oList) == 0 {
		return nil, e.N(ECode0C0206, e.MsgOrderDNE)
	}

	return oList[0], nil
}

// OrderUpsert writes the cached order, replacing an existing row with the
// same id
func OrderUpsert(db *sql.Connection, o *model.Order) (err error) {
	cart := []byte(o.Cart)
	if cart == nil {
		cart = []byte{}
	}

	ib := db.Insert(OrderCacheTable).
		Columns("pos_order_cache_id", "server_id", "order_number",
			"order_status", "order_type", "subtotal", "tax_amount",
			"discount_amount", "total", "customer_id", "table_number",
			"notes", "cart", "version", "created_on", "updated_on").
		Values(o.ID, o.ServerID, o.OrderNumber, o.Status, o.OrderType,
			o.Subtotal, o.TaxAmount, o.DiscountAmount, o.Total, o.CustomerID,
			o.TableNumber, o.Notes, cart, o.Version, o.CreatedOn, o.UpdatedOn).
		Suffix(`ON CONFLICT (pos_order_cache_id) DO UPDATE SET
			server_id=excluded.server_id,
			order_number=excluded.order_number,
			order_status=excluded.order_status,
			order_type=excluded.order_type,
			subtotal=excluded.subtotal,
			tax_amount=excluded.tax_amount,
			discount_amount=excluded.discount_amount,
			total=excluded.total,
			customer_id=excluded.customer_id,
			table_number=excluded.table_number,
			notes=excluded.notes,
			cart=excluded.cart,
			version=excluded.version,
			created_on=excluded.created_on,
			updated_on=excluded.updated_on`)

	if err := db.ExecInsert(ib); err != nil {
		return e.W(err, ECode0C0207)
	}

	return nil
}

// OrderSetServerFields writes back the server-assigned id and version
// after a successful sync
func OrderSetServerFields(db *sql.Connection, id, serverID string, version int) (err error) {
	ub := db.Update(OrderCacheTable).
		Set("version", version).
		Set("updated_on", sql.Now()).
		Where("pos_order_cache_id = ?", id)

	if serverID != "" {
		ub = ub.Set("server_id", serverID)
	}

	if err := db.ExecUpdate(ub); err != nil {
		return e.W(err, ECode0C0208)
	}

	return nil
}

// OrderDelete removes the cached order
func OrderDelete(db *sql.Connection, id string) (err error) {
	delB := db.Delete(OrderCacheTable).
		Where("pos_order_cache_id = ?", id)

	if err := db.ExecDelete(delB); err != nil {
		return e.W(err, ECode0C0209)
	}

	return nil
}
