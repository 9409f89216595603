// Package migrations holds the schema migrations of the SQL score store.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the ordered set of schema migrations.
var Migrations = migrate.NewMigrations()

func init() {
	// Migration ids come from the registering file names.
	if err := Migrations.DiscoverCaller(); err != nil {
		panic(err)
	}
}
