// Package migration applies golang-migrate migrations from an fs.FS to a database connection.
package migration

import (
	"context"
	"io/fs"
)

// Tables recording applied migration versions.
const (
	FrameworkMigrationsTable = "batch_framework_migrations"
	AppMigrationsTable       = "batch_app_migrations"
)

// Migrator handles database schema migrations.
type Migrator interface {
	// Up applies all pending migrations found under path in migrationFS.
	// tableName is the table used to track migration history.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
}
