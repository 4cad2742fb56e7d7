package sqlmodel

import (
	"fmt"

	"github.com/tillpoint/pos-lib/catalog/model"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/sql"
)

const (
	// CategoryCacheTable
	CategoryCacheTable = "pos_category_cache"

	categoryCacheColumns = `pos_category_cache_id, category_name, icon,
		color, sort_order, price, is_active, show_in_pos, version,
		updated_on`

	ECode0D0301 = e.Code0D03 + "01"
	ECode0D0302 = e.Code0D03 + "02"
	ECode0D0303 = e.Code0D03 + "03"
	ECode0D0304 = e.Code0D03 + "04"
	ECode0D0305 = e.Code0D03 + "05"
	ECode0D0306 = e.Code0D03 + "06"
	ECode0D0307 = e.Code0D03 + "07"
	ECode0D0308 = e.Code0D03 + "08"
	ECode0D0309 = e.Code0D03 + "09"
	ECode0D030A = e.Code0D03 + "0A"
	ECode0D030B = e.Code0D03 + "0B"
	ECode0D030C = e.Code0D03 + "0C"
	ECode0D030D = e.Code0D03 + "0D"
	ECode0D030E = e.Code0D03 + "0E"
	ECode0D030F = e.Code0D03 + "0F"
)

// CategoryGetParam get params
type CategoryGetParam struct {
	Limit            int
	Offset           int
	ID               *string
	FlagActive       bool
	FlagCount        bool
	OrderBySortOrder string
	DataHandler      func(*model.Category) error
}

// CategoryGet performs the DB query to return the list of cached
// categories
func CategoryGet(db *sql.Connection, p *CategoryGetParam) (cList []*model.Category, count int, err error) {
	if p.Limit == 0 {
		p.Limit = 1
	}

	sb := db.Select(sql.FieldPlaceHolder).
		From(CategoryCacheTable).
		Limit(uint64(p.Limit))

	if p.ID != nil {
		sb = sb.Where("pos_category_cache_id = ?", *p.ID)
	}

	if p.FlagActive {
		sb = sb.Where("is_active = ?", true)
	}

	if p.FlagCount {
		count, err = db.QueryCount(sb)
		if err != nil {
			return nil, 0, e.W(err, ECode0D0301)
		}
	}

	sb = sb.Offset(uint64(p.Offset))

	if p.OrderBySortOrder != "" {
		sb = sb.OrderBy(fmt.Sprintf("sort_order %s, category_name %s",
			p.OrderBySortOrder, p.OrderBySortOrder))
	}

	rows, err := db.ToSQLWFieldAndQuery(sb, categoryCacheColumns)
	if err != nil {
		return nil, 0, e.W(err, ECode0D0302)
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.SortOrder,
			&c.Price, &c.IsActive, &c.ShowInPOS, &c.Version,
			&c.UpdatedOn); err != nil {
			return nil, 0, e.W(err, ECode0D0303)
		}

		if p.DataHandler != nil {
			if err := p.DataHandler(c); err != nil {
				return nil, 0, e.W(err, ECode0D0304)
			}
		} else {
			cList = append(cList, c)
		}
	}

	return cList, count, nil
}

// CategoryGetByID returns the cached category or a category does not exist
// error
func CategoryGetByID(db *sql.Connection, id string) (c *model.Category, err error) {
	cList, _, err := CategoryGet(db, &CategoryGetParam{
		Limit: 1,
		ID:    &id,
	})
	if err != nil {
		return nil, e.W(err, ECode0D0305)
	}

	if len(cList) == 0 {
		return nil, e.N(ECode0D0306, e.MsgCategoryDNE)
	}

	return cList[0], nil
}

// CategoryUpsert writes the cached category, replacing an existing row
// with the same id
func CategoryUpsert(db *sql.Connection, c *model.Category) (err error) {
	ib := db.Insert(CategoryCacheTable).
		Columns("pos_category_cache_id", "category_name", "icon", "color",
			"sort_order", "price", "is_active", "show_in_pos", "version",
			"updated_on").
		Values(c.ID, c.Name, c.Icon, c.Color, c.SortOrder, c.Price,
			c.IsActive, c.ShowInPOS, c.Version, c.UpdatedOn).
		Suffix(`ON CONFLICT (pos_category_cache_id) DO UPDATE SET
			category_name=excluded.category_name,
			icon=excluded.icon,
			color=excluded.color,
			sort_order=excluded.sort_order,
			price=excluded.price,
			is_active=excluded.is_active,
			show_in_pos=excluded.show_in_pos,
			version=excluded.version,
			updated_on=excluded.updated_on`)

	if err := db.ExecInsert(ib); err != nil {
		return e.W(err, ECode0D0307)
	}

	return nil
}

// CategorySetVersion writes back the server confirmed version
func CategorySetVersion(db *sql.Connection, id string, version int) (err error) {
	ub := db.Update(CategoryCacheTable).
		Set("version", version).
		Set("updated_on", sql.Now()).
		Where("pos_category_cache_id = ?", id)

	if err := db.ExecUpdate(ub); err != nil {
		return e.W(err, ECode0D0308)
	}

	return nil
}

// CategorySetPrice writes the category level price
func CategorySetPrice(db *sql.Connection, id string, price int64, version int) (err error) {
	ub := db.Update(CategoryCacheTable).
		Set("price", price).
		Set("version", version).
		Set("updated_on", sql.Now()).
		Where("pos_category_cache_id = ?", id)

	if err := db.ExecUpdate(ub); err != nil {
		return e.W(err, ECode0D0309)
	}

	return nil
}

// CategoryBulkRefresh replaces the whole category cache with the server's
// list
func CategoryBulkRefresh(db *sql.Connection, cList []*model.Category) (err error) {
	tx, err := db.BeginReturnDB()
	if err != nil {
		return e.W(err, ECode0D030A)
	}
	defer db.RollbackIfInTxn()

	delB := tx.Delete(CategoryCacheTable)
	if err := tx.ExecDelete(delB); err != nil {
		return e.W(err, ECode0D030B)
	}

	bi, err := sql.NewBulkInsert(tx, CategoryCacheTable,
		`pos_category_cache_id, category_name, icon, color, sort_order,
		price, is_active, show_in_pos, version, updated_on`, "")
	if err != nil {
		return e.W(err, ECode0D030C)
	}

	for _, c := range cList {
		if _, err := bi.Add(c.ID, c.Name, c.Icon, c.Color, c.SortOrder,
			c.Price, c.IsActive, c.ShowInPOS, c.Version, c.UpdatedOn); err != nil {
			return e.W(err, ECode0D030D)
		}
	}

	if err := bi.Flush(); err != nil {
		return e.W(err, ECode0D030E)
	}

	if err := db.Commit(); err != nil {
		return e.W(err, ECode0D030F)
	}

	return nil
}
