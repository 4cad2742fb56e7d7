package e

// This defines reusable error messages

const (
	MsgUnknownInternalServerError = "Unknown Internal Server Error"
	MsgUnavailable                = "Service Unavailable"

	// migrations
	MsgMigrationCodeVersionDNE         = "Migration code/version does not exist"
	MsgMigrationNotInstalled           = "Migrations library not installed"
	MsgMigrationNone                   = "No migrations exist yet"
	MsgMigrationFileNameInvalid        = "Invalid migration file name"
	MsgMigrationFileNameVersionInvalid = "Invalid migration file name version"

	// syncqueue
	MsgSyncQueueItemDNE        = "Sync queue item does not exist"
	MsgSyncQueueItemNotPending = "Sync queue item is not pending"
	MsgSyncQueueFull           = "Sync queue is full"

	// conflict
	MsgConflictDNE             = "Sync conflict does not exist"
	MsgConflictAlreadyResolved = "Sync conflict already resolved"

	// remote
	MsgRemoteRecordDNE    = "Remote record does not exist"
	MsgRemoteVersionStale = "Remote record version is newer"
	MsgRemoteRejected     = "Remote store rejected the record"
	MsgRemoteUnavailable  = "Remote store unavailable"

	// order
	MsgOrderDNE = "Order does not exist"

	// catalog
	MsgProductDNE  = "Product does not exist"
	MsgCategoryDNE = "Category does not exist"

	// heldorder
	MsgHeldOrderDNE = "Held order does not exist"
)
