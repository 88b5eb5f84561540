// Package sqlite registers the SQLite dialect.
package sqlite

import (
	"errors"
	"strings"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

// defaultParams lets a streaming reader and a chunk writer share one database file.
const defaultParams = "_journal_mode=WAL&_busy_timeout=5000"

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the database path with WAL and busy-timeout parameters
// unless the path already carries its own query string.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if strings.Contains(c.Database, "?") || strings.Contains(c.Database, ":memory:") {
		return c.Database
	}
	return c.Database + "?" + defaultParams
}

// NewProvider returns the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "sqlite")
}

// Module adds the SQLite provider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
