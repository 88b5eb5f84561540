// Package filesystem embeds the migrations that create the batch metadata tables.
package filesystem

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

//go:embed resource
var rawFrameworkMigrationFS embed.FS

// FrameworkMigrationsFS returns the framework migrations, one directory per database type.
func FrameworkMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawFrameworkMigrationFS, "resource")
	if err != nil {
		logger.Fatalf("Failed to create subdirectory for framework migration FS: %v", err)
	}
	return subFS
}
