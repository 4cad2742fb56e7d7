package lib

import (
	"github.com/tillpoint/pos-lib/catalog"
	"github.com/tillpoint/pos-lib/conflict"
	"github.com/tillpoint/pos-lib/heldorder"
	"github.com/tillpoint/pos-lib/migration"
	"github.com/tillpoint/pos-lib/order"
	"github.com/tillpoint/pos-lib/sql"
	"github.com/tillpoint/pos-lib/syncengine"
	"github.com/tillpoint/pos-lib/syncqueue"
)

// InstallAll registers every package's migration list and upgrades the
// database to the latest version. Call once at startup before using any
// other package.
func InstallAll(db *sql.Connection) (err error) {
	m, err := migration.NewMigrator(db)
	if err != nil {
		return err
	}

	mlList := []*migration.List{
		syncqueue.GetMigrationList(),
		conflict.GetMigrationList(),
		syncengine.GetMigrationList(),
		order.GetMigrationList(),
		catalog.GetMigrationList(),
		heldorder.GetMigrationList(),
	}
	for _, ml := range mlList {
		if err := m.AddMigrationList(ml); err != nil {
			return err
		}
	}

	return m.Upgrade()
}
