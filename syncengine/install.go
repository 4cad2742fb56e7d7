package syncengine

import (
	"embed"

	"github.com/tillpoint/pos-lib/migration"
)

// If using this package, the pos_sync_run namespace must be reserved

const (
	MIGRATION_CODE = "syncengine"
)

//go:embed db/migrations/*
var migrations embed.FS

// GetMigrationList returns this packages migration list
func GetMigrationList() (ml *migration.List) {
	return migration.NewList(MIGRATION_CODE, migration.MIGRATION_PATH, migrations)
}
