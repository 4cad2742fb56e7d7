package sqlmodel

import (
	"fmt"

	"github.com/tillpoint/pos-lib/catalog/model"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/sql"
)

const (
	// ProductCacheTable
	ProductCacheTable = "pos_product_cache"

	productCacheColumns = `pos_product_cache_id, category_id, sku,
		product_name, unit, retail_price, wholesale_price, cost_price,
		is_active, version, updated_on`

	ECode0D0201 = e.Code0D02 + "01"
	ECode0D0202 = e.Code0D02 + "02"
	ECode0D0203 = e.Code0D02 + "03"
	ECode0D0204 = e.Code0D02 + "04"
	ECode0D0205 = e.Code0D02 + "05"
	ECode0D0206 = e.Code0D02 + "06"
	ECode0D0207 = e.Code0D02 + "07"
	ECode0D0208 = e.Code0D02 + "08"
	ECode0D0209 = e.Code0D02 + "09"
	ECode0D020A = e.Code0D02 + "0A"
	ECode0D020B = e.Code0D02 + "0B"
	ECode0D020C = e.Code0D02 + "0C"
	ECode0D020D = e.Code0D02 + "0D"
	ECode0D020E = e.Code0D02 + "0E"
)

// ProductGetParam get params
type ProductGetParam struct {
	Limit       int
	Offset      int
	ID          *string
	CategoryID  *string
	FlagActive  bool
	FlagCount   bool
	OrderByName string
	DataHandler func(*model.Product) error
}

// ProductGet performs the DB query to return the list of cached products
func ProductGet(db *sql.Connection, p *ProductGetParam) (pList []*model.Product, count int, err error) {
	if p.Limit == 0 {
		p.Limit = 1
	}

	sb := db.Select(sql.FieldPlaceHolder).
		From(ProductCacheTable).
		Limit(uint64(p.Limit))

	if p.ID != nil {
		sb = sb.Where("pos_product_cache_id = ?", *p.ID)
	}

	if p.CategoryID != nil {
		sb = sb.Where("category_id = ?", *p.CategoryID)
	}

	if p.FlagActive {
		sb = sb.Where("is_active = ?", true)
	}

	if p.FlagCount {
		count, err = db.QueryCount(sb)
		if err != nil {
			return nil, 0, e.W(err, ECode0D0201)
		}
	}

	sb = sb.Offset(uint64(p.Offset))

	if p.OrderByName != "" {
		sb = sb.OrderBy(fmt.Sprintf("product_name %s", p.OrderByName))
	}

	rows, err := db.ToSQLWFieldAndQuery(sb, productCacheColumns)
	if err != nil {
		return nil, 0, e.W(err, ECode0D0202)
	}
	defer rows.Close()

	for rows.Next() {
		pr := &model.Product{}
		if err := rows.Scan(&pr.ID, &pr.CategoryID, &pr.SKU, &pr.Name,
			&pr.Unit, &pr.RetailPrice, &pr.WholesalePrice, &pr.CostPrice,
			&pr.IsActive, &pr.Version, &pr.UpdatedOn); err != nil {
			return nil, 0, e.W(err, ECode0D0203)
		}

		if p.DataHandler != nil {
			if err := p.DataHandler(pr); err != nil {
				return nil, 0, e.W(err, ECode0D0204)
			}
		} else {
			pList = append(pList, pr)
		}
	}

	return pList, count, nil
}

// ProductGetByID returns the cached product or a product does not exist
// error
func ProductGetByID(db *sql.Connection, id string) (pr *model.Product, err error) {
	pList, _, err := ProductGet(db, &ProductGetParam{
		Limit: 1,
		ID:    &id,
	})
	if err != nil {
		return nil, e.W(err, ECode0D0205)
	}

	if len(pList) == 0 {
		return nil, e.N(ECode0D0206, e.MsgProductDNE)
	}

	return pList[0], nil
}

// ProductUpsert writes the cached product, replacing an existing row with
// the same id
func ProductUpsert(db *sql.Connection, pr *model.Product) (err error) {
	ib := db.Insert(ProductCacheTable).
		Columns("pos_product_cache_id", "category_id", "sku", "product_name",
			"unit", "retail_price", "wholesale_price", "cost_price",
			"is_active", "version", "updated_on").
		Values(pr.ID, pr.CategoryID, pr.SKU, pr.Name, pr.Unit,
			pr.RetailPrice, pr.WholesalePrice, pr.CostPrice, pr.IsActive,
			pr.Version, pr.UpdatedOn).
		Suffix(`ON CONFLICT (pos_product_cache_id) DO UPDATE SET
			category_id=excluded.category_id,
			sku=excluded.sku,
			product_name=excluded.product_name,
			unit=excluded.unit,
			retail_price=excluded.retail_price,
			wholesale_price=excluded.wholesale_price,
			cost_price=excluded.cost_price,
			is_active=excluded.is_active,
			version=excluded.version,
			updated_on=excluded.updated_on`)

	if err := db.ExecInsert(ib); err != nil {
		return e.W(err, ECode0D0207)
	}

	return nil
}

// ProductSetVersion writes back the server confirmed version
func ProductSetVersion(db *sql.Connection, id string, version int) (err error) {
	ub := db.Update(ProductCacheTable).
		Set("version", version).
		Set("updated_on", sql.Now()).
		Where("pos_product_cache_id = ?", id)

	if err := db.ExecUpdate(ub); err != nil {
		return e.W(err, ECode0D0208)
	}

	return nil
}

// ProductBulkRefresh replaces the whole product cache with the server's
// list. Runs in one txn so readers never see a half empty cache.
func ProductBulkRefresh(db *sql.Connection, pList []*model.Product) (err error) {
	tx, err := db.BeginReturnDB()
	if err != nil {
		return e.W(err, ECode0D0209)
	}
	defer db.RollbackIfInTxn()

	delB := tx.Delete(ProductCacheTable)
	if err := tx.ExecDelete(delB); err != nil {
		return e.W(err, ECode0D020A)
	}

	bi, err := sql.NewBulkInsert(tx, ProductCacheTable,
		`pos_product_cache_id, category_id, sku, product_name, unit,
		retail_price, wholesale_price, cost_price, is_active, version,
		updated_on`, "")
	if err != nil {
		return e.W(err, ECode0D020B)
	}

	for _, pr := range pList {
		if _, err := bi.Add(pr.ID, pr.CategoryID, pr.SKU, pr.Name, pr.Unit,
			pr.RetailPrice, pr.WholesalePrice, pr.CostPrice, pr.IsActive,
			pr.Version, pr.UpdatedOn); err != nil {
			return e.W(err, ECode0D020C)
		}
	}

	if err := bi.Flush(); err != nil {
		return e.W(err, ECode0D020D)
	}

	if err := db.Commit(); err != nil {
		return e.W(err, ECode0D020E)
	}

	return nil
}
