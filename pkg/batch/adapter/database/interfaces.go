// Package database declares the database adapter contracts used by repositories, readers and writers.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/taxiemissions/pkg/batch/core/adapter"
)

// DBExecutor runs statements outside an explicit transaction.
type DBExecutor interface {
	// ExecuteUpdate performs "CREATE", "UPDATE" or "DELETE" for a model. tableName overrides the model's table when set.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)
	// ExecuteUpsert inserts model, updating updateColumns on conflict over conflictColumns (or doing nothing when updateColumns is empty).
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
	// ExecuteQuery loads every row matching query into target.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error
	// ExecuteQueryAdvanced is ExecuteQuery with ordering and a limit (0 means none).
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error
	// Count counts rows of model matching query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)
	// Exec runs a raw statement. Placeholders are written as '?' for every dialect.
	Exec(ctx context.Context, statement string, args ...interface{}) (rowsAffected int64, err error)
	// Raw runs a raw query and scans the result into target (struct, slice of structs, or scalar).
	Raw(ctx context.Context, target interface{}, query string, args ...interface{}) error
}

// DBConnection is a named, configured database handle.
type DBConnection interface {
	coreAdapter.ResourceConnection
	DBExecutor

	IsTableNotExistError(err error) bool
	RefreshConnection(ctx context.Context) error
	Config() dbconfig.DatabaseConfig
	// GetSQLDB exposes the pool for streaming reads that must not buffer a whole result.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver returns a healthy DBConnection by configuration name.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider owns the connections of one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	ForceReconnect(name string) (DBConnection, error)
	CloseAll() error
	Type() string
}

// DBProviderGroup is the fx value group every DBProvider is registered in.
const DBProviderGroup = "db_providers"
