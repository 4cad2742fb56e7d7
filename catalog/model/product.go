package model

const (
	// ProductEntityType the sync queue tag for products
	ProductEntityType = "product"
)

// Product a locally cached product. Prices are minor units. Version runs
// the same optimistic counter as orders.
type Product struct {
	ID             string `json:"id"`
	CategoryID     string `json:"categoryId,omitempty"`
	SKU            string `json:"sku,omitempty"`
	Name           string `json:"name"`
	Unit           string `json:"unit,omitempty"`
	RetailPrice    int64  `json:"retailPrice"`
	WholesalePrice int64  `json:"wholesalePrice,omitempty"`
	CostPrice      int64  `json:"costPrice,omitempty"`
	IsActive       bool   `json:"isActive"`
	Version        int    `json:"version"`
	UpdatedOn      string `json:"updatedOn"`
}
