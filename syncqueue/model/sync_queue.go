package model

import (
	"time"
)

const (
	SyncQueueStatusPending  = "pending"
	SyncQueueStatusSyncing  = "syncing"
	SyncQueueStatusSynced   = "synced"
	SyncQueueStatusFailed   = "failed"
	SyncQueueStatusConflict = "conflict"

	SyncQueueOperationCreate = "create"
	SyncQueueOperationUpdate = "update"
	SyncQueueOperationDelete = "delete"

	// SyncQueueMaxAttempts attempts after which an item becomes a terminal
	// failure rather than retrying
	SyncQueueMaxAttempts = 5
	// SyncQueueMaxSize cap on total queue rows before enqueue rejects
	SyncQueueMaxSize = 500
)

// SyncQueueBackoffDelays wait after the Nth failed attempt before the item
// is eligible again
var SyncQueueBackoffDelays = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	300 * time.Second,
}

// SyncQueue model
type SyncQueue struct {
	ID            int
	EntityType    string
	EntityID      string
	Operation     string
	Payload       []byte
	PayloadHash   string
	Status        string
	Priority      int
	Attempts      int
	LastError     string
	ClientVersion int
	WriteToken    string
	ConflictID    string
	CreatedOn     string
	LastAttemptOn string
}

// BackoffDelay returns the wait after the given number of attempts
func BackoffDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if attempts > len(SyncQueueBackoffDelays) {
		attempts = len(SyncQueueBackoffDelays)
	}
	return SyncQueueBackoffDelays[attempts-1]
}
