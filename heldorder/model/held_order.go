package model

import "encoding/json"

// HeldOrder a parked ticket, local to this terminal. Held orders never
// reach the remote store until promoted to a real order.
type HeldOrder struct {
	ID         int             `json:"id"`
	TerminalID string          `json:"terminalId"`
	Label      string          `json:"label"`
	Cart       json.RawMessage `json:"cart"`
	Total      int64           `json:"total"`
	CreatedOn  string          `json:"createdOn"`
}
