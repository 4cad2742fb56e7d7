package catalog

import (
	"encoding/json"

	"github.com/tillpoint/pos-lib/catalog/model"
	"github.com/tillpoint/pos-lib/catalog/sqlmodel"
	"github.com/tillpoint/pos-lib/e"
	"github.com/tillpoint/pos-lib/remote"
	"github.com/tillpoint/pos-lib/sql"
)

const (
	ECode0D0401 = e.Code0D04 + "01"
	ECode0D0402 = e.Code0D04 + "02"
	ECode0D0403 = e.Code0D04 + "03"
	ECode0D0404 = e.Code0D04 + "04"
	ECode0D0405 = e.Code0D04 + "05"
	ECode0D0406 = e.Code0D04 + "06"
	ECode0D0407 = e.Code0D04 + "07"
	ECode0D0408 = e.Code0D04 + "08"
	ECode0D0409 = e.Code0D04 + "09"
)

// ProductReconciler writes server state back into the product cache. One
// per engine registration of the product entity type.
type ProductReconciler struct {
	s *Service
}

// ProductReconciler returns the reconciler to register for products
func (s *Service) ProductReconciler() *ProductReconciler {
	return &ProductReconciler{s: s}
}

// ApplyServer writes back the server confirmed version
func (r *ProductReconciler) ApplyServer(db *sql.Connection, entityID string,
	rec *remote.Record) (err error) {
	if err := sqlmodel.ProductSetVersion(db, entityID, rec.Version); err != nil {
		return e.W(err, ECode0D0401)
	}

	return nil
}

// ApplyServerData replaces the cached product with the server copy
func (r *ProductReconciler) ApplyServerData(db *sql.Connection, entityID string,
	payload []byte) (err error) {
	pr := &model.Product{}
	if err := json.Unmarshal(payload, pr); err != nil {
		return e.W(err, ECode0D0402)
	}

	if pr.ID == "" {
		pr.ID = entityID
	}

	if err := sqlmodel.ProductUpsert(db, pr); err != nil {
		return e.W(err, ECode0D0403)
	}

	return nil
}

// CategoryReconciler writes server state back into the category cache
type CategoryReconciler struct {
	s *Service
}

// CategoryReconciler returns the reconciler to register for categories
func (s *Service) CategoryReconciler() *CategoryReconciler {
	return &CategoryReconciler{s: s}
}

// ApplyServer writes back the server confirmed version
func (r *CategoryReconciler) ApplyServer(db *sql.Connection, entityID string,
	rec *remote.Record) (err error) {
	if err := sqlmodel.CategorySetVersion(db, entityID, rec.Version); err != nil {
		return e.W(err, ECode0D0404)
	}

	return nil
}

// ApplyServerData replaces the cached category with the server copy
func (r *CategoryReconciler) ApplyServerData(db *sql.Connection, entityID string,
	payload []byte) (err error) {
	c := &model.Category{}
	if err := json.Unmarshal(payload, c); err != nil {
		return e.W(err, ECode0D0405)
	}

	if c.ID == "" {
		c.ID = entityID
	}

	if err := sqlmodel.CategoryUpsert(db, c); err != nil {
		return e.W(err, ECode0D0406)
	}

	return nil
}

// CategoryPriceReconciler writes server accepted price changes back into
// the category cache
type CategoryPriceReconciler struct {
	s *Service
}

// CategoryPriceReconciler returns the reconciler to register for category
// price changes
func (s *Service) CategoryPriceReconciler() *CategoryPriceReconciler {
	return &CategoryPriceReconciler{s: s}
}

// ApplyServer writes back the server confirmed version
func (r *CategoryPriceReconciler) ApplyServer(db *sql.Connection, entityID string,
	rec *remote.Record) (err error) {
	if err := sqlmodel.CategorySetVersion(db, entityID, rec.Version); err != nil {
		return e.W(err, ECode0D0407)
	}

	return nil
}

// ApplyServerData applies the server's price to the cached category
func (r *CategoryPriceReconciler) ApplyServerData(db *sql.Connection, entityID string,
	payload []byte) (err error) {
	cp := &model.CategoryPrice{}
	if err := json.Unmarshal(payload, cp); err != nil {
		return e.W(err, ECode0D0408)
	}

	if cp.CategoryID == "" {
		cp.CategoryID = entityID
	}

	if err := sqlmodel.CategorySetPrice(db, cp.CategoryID, cp.Price,
		cp.Version); err != nil {
		return e.W(err, ECode0D0409)
	}

	return nil
}
