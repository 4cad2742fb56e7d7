package remote

import (
	"context"
	"encoding/json"

	"github.com/tillpoint/pos-lib/e"
)

// Store is the authoritative copy of synchronized entities. Implementations
// must be idempotent with respect to the write token: replaying a write with
// a token the store has already applied returns the current record without
// applying it again.
type Store interface {
	// Create stores a new record. The server assigns the permanent id,
	// returned in Record.ServerID.
	Create(ctx context.Context, entityType, entityID string, payload json.RawMessage,
		writeToken string) (r *Record, err error)
	// Update replaces the record, but only if the stored version still
	// matches baseVersion. A stale baseVersion fails with a version
	// conflict and leaves the stored record untouched.
	Update(ctx context.Context, entityType, entityID string, payload json.RawMessage,
		baseVersion int, writeToken string) (r *Record, err error)
	// Delete removes the record if the stored version still matches
	// baseVersion
	Delete(ctx context.Context, entityType, entityID string, baseVersion int) (err error)
	// FetchCurrent returns the stored record, or a not found error if the
	// record does not exist (or was deleted)
	FetchCurrent(ctx context.Context, entityType, entityID string) (r *Record, err error)
}

// Record the stored state of an entity as the store last accepted it
type Record struct {
	EntityID   string          `json:"entityId"`
	ServerID   string          `json:"serverId"`
	Version    int             `json:"version"`
	Hash       string          `json:"hash"`
	WriteToken string          `json:"writeToken"`
	Payload    json.RawMessage `json:"payload"`
}

// IsConflict reports whether the error indicates the store holds a newer
// version than the write was based on
func IsConflict(err error) bool {
	return e.ContainsError(err, e.MsgRemoteVersionStale)
}

// IsRejected reports whether the store permanently rejected the write, e.g.
// the payload failed validation. Retrying will not help.
func IsRejected(err error) bool {
	return e.ContainsError(err, e.MsgRemoteRejected)
}

// IsNotFound reports whether the record does not exist on the store
func IsNotFound(err error) bool {
	return e.ContainsError(err, e.MsgRemoteRecordDNE)
}
