package model

const (
	SyncRunStatusRunning   = "running"
	SyncRunStatusCompleted = "completed"
	SyncRunStatusFailed    = "failed"
)

// SyncRun one engine tick: when it ran and what it moved
type SyncRun struct {
	ID              int
	Status          string
	ItemsSynced     int
	ItemsFailed     int
	ItemsConflicted int
	Error           string
	StartedOn       string
	CompletedOn     string
}
