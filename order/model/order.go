package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	// EntityType the sync queue tag for orders
	EntityType = "order"

	// LocalIDPrefix marks ids assigned before the server has seen the
	// order
	LocalIDPrefix = "LOCAL-"

	OrderStatusNew       = "new"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusServed    = "served"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusVoided    = "voided"

	OrderTypeDineIn   = "dine_in"
	OrderTypeTakeaway = "takeaway"
	OrderTypeDelivery = "delivery"
)

// Order a locally cached order. Monetary amounts are minor units. Version
// is the record's optimistic concurrency counter: it matches the server's
// version while in sync and runs ahead by one while a local edit waits to
// be pushed.
type Order struct {
	ID             string          `json:"id"`
	ServerID       string          `json:"serverId,omitempty"`
	OrderNumber    string          `json:"orderNumber"`
	Status         string          `json:"status"`
	OrderType      string          `json:"orderType"`
	Subtotal       int64           `json:"subtotal"`
	TaxAmount      int64           `json:"taxAmount"`
	DiscountAmount int64           `json:"discountAmount"`
	Total          int64           `json:"total"`
	CustomerID     string          `json:"customerId,omitempty"`
	TableNumber    string          `json:"tableNumber,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Cart           json.RawMessage `json:"cart,omitempty"`
	Version        int             `json:"version"`
	CreatedOn      string          `json:"createdOn"`
	UpdatedOn      string          `json:"updatedOn"`
}

// NewLocalID returns an order id usable before the server assigns the
// permanent one
func NewLocalID() string {
	return fmt.Sprintf("%s%s", LocalIDPrefix, uuid.NewString())
}
