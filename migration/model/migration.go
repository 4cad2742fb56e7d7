package model

const (
	MIGRATION_STATUS_PENDING  = "pending"
	MIGRATION_STATUS_COMPLETE = "complete"
	MIGRATION_STATUS_FAILED   = "failed"
)

// Migration a record of a single applied migration file
type Migration struct {
	ID        int
	Code      string
	Version   int
	Status    string
	SQL       string
	Err       string
	CreatedOn string
	UpdatedOn string
}
