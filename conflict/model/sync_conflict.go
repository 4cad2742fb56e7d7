package model

const (
	ConflictTypeVersionMismatch  = "version_mismatch"
	ConflictTypeDeletedOnServer  = "deleted_on_server"
	ConflictTypeConcurrentUpdate = "concurrent_update"

	ResolutionKeepLocal   = "keep_local"
	ResolutionKeepServer  = "keep_server"
	ResolutionManualMerge = "manual_merge"
	ResolutionDismissed   = "dismissed"
)

// SyncConflict a queued write the server could not accept because both
// sides changed. Held for operator review, never silently auto-resolved.
type SyncConflict struct {
	ID            string
	QueueItemID   int
	EntityType    string
	EntityID      string
	LocalData     []byte
	ServerData    []byte
	ServerVersion int
	ConflictType  string
	DetectedOn    string
	ResolvedOn    string
	Resolution    string
}

// Resolved reports whether the conflict has been settled
func (sc *SyncConflict) Resolved() bool {
	return sc.ResolvedOn != ""
}
