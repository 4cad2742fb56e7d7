package model

const (
	// CategoryEntityType the sync queue tag for categories
	CategoryEntityType = "category"
	// CategoryPriceEntityType the sync queue tag for category level price
	// changes, queued separately so a price edit does not clobber a
	// concurrent category rename
	CategoryPriceEntityType = "category_price"
)

// Category a locally cached category. Price is the category level default
// price in minor units, zero when the category has none.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
	SortOrder int    `json:"sortOrder"`
	Price     int64  `json:"price"`
	IsActive  bool   `json:"isActive"`
	ShowInPOS bool   `json:"showInPos"`
	Version   int    `json:"version"`
	UpdatedOn string `json:"updatedOn"`
}

// CategoryPrice the payload queued for a category price change
type CategoryPrice struct {
	CategoryID string `json:"categoryId"`
	Price      int64  `json:"price"`
	Version    int    `json:"version"`
}
