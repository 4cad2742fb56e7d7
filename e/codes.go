package e

// Constants in here define error codes that are unique to a package/function.
// The first two characters define the package, within this repo, and the
// second two characters define the function within that package. Furthermore,
// when creating an error, the e.N func should be called, which will also
// take a two character unique id within the function.
//
// Valid values for the characters are: 0-9 and A-Z. Packages starting with a
// number should be reserved for packages within the pos-lib repository. Other
// repository packages may use any code starting with a letter. Note, this does
// not guarantee uniqueness across all repos, but it is assumed that other
// repos will not include eachother. If they do, some extra checks should be
// taken to ensure unique error codes.

const (
	// package: migration
	Code0001 = "0001" // package:migration | migration/migrator.go
	Code0002 = "0002" // package:migration | migration/list.go
	Code0003 = "0003" // package:migration/sqlmodel | migration/sqlmodel/migration.go

	// package: sql
	Code0201 = "0201" // package:sql | sql/count.go
	Code0202 = "0202" // package:sql | sql/row.go
	Code0203 = "0203" // package:sql | sql/sql.go
	Code0205 = "0205" // package:sql | sql/txn.go
	Code0206 = "0206" // package:sql | sql/rows.go
	Code0207 = "0207" // package:sql | sql/bulk.go
	Code0208 = "0208" // package:sql | sql/statement.go

	// package: syncqueue
	Code0601 = "0601" // package:syncqueue | syncqueue/syncqueue.go
	Code0603 = "0603" // package:syncqueue/sqlmodel | syncqueue/sqlmodel/sync_queue.go

	// package: conflict
	Code0701 = "0701" // package:conflict | conflict/conflict.go
	Code0703 = "0703" // package:conflict/sqlmodel | conflict/sqlmodel/sync_conflict.go

	// package: network
	Code0801 = "0801" // package:network | network/monitor.go

	// package: syncengine
	Code0901 = "0901" // package:syncengine | syncengine/engine.go
	Code0903 = "0903" // package:syncengine/sqlmodel | syncengine/sqlmodel/sync_run.go

	// package: remote
	Code0A01 = "0A01" // package:remote | remote/client.go

	// package: pubsub
	Code0B01 = "0B01" // package:pubsub | pubsub/pubsub.go

	// package: order
	Code0C01 = "0C01" // package:order | order/order.go
	Code0C02 = "0C02" // package:order/sqlmodel | order/sqlmodel/order_cache.go

	// package: catalog
	Code0D01 = "0D01" // package:catalog | catalog/catalog.go
	Code0D02 = "0D02" // package:catalog/sqlmodel | catalog/sqlmodel/product_cache.go
	Code0D03 = "0D03" // package:catalog/sqlmodel | catalog/sqlmodel/category_cache.go
	Code0D04 = "0D04" // package:catalog | catalog/reconciler.go

	// package: heldorder
	Code0E01 = "0E01" // package:heldorder | heldorder/heldorder.go
	Code0E02 = "0E02" // package:heldorder/sqlmodel | heldorder/sqlmodel/held_order.go
)
