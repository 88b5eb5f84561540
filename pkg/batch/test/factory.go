// Package test holds fixtures shared by the framework and application tests.
package test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

// NewSQLiteConfig returns a default config with one file-backed sqlite connection per name,
// all living in a temporary directory owned by t.
func NewSQLiteConfig(t *testing.T, names ...string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	dir := t.TempDir()
	for _, name := range names {
		cfg.Surfin.Adapter.Database[name] = map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(dir, name+".db"),
		}
	}
	return cfg
}

// NewSQLiteResolver returns a resolver over NewSQLiteConfig connections, closed when t ends.
func NewSQLiteResolver(t *testing.T, names ...string) *gormadapter.GormDBConnectionResolver {
	t.Helper()
	return NewResolverFor(t, NewSQLiteConfig(t, names...))
}

// NewResolverFor returns a sqlite-capable resolver over cfg, closed when t ends.
func NewResolverFor(t *testing.T, cfg *config.Config) *gormadapter.GormDBConnectionResolver {
	t.Helper()
	r := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		Providers: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:       cfg,
	})
	t.Cleanup(func() { _ = r.CloseAll() })
	return r
}

// MustResolve resolves name or fails the test.
func MustResolve(t *testing.T, r database.DBConnectionResolver, name string) database.DBConnection {
	t.Helper()
	conn, err := r.ResolveDBConnection(context.Background(), name)
	require.NoError(t, err)
	return conn
}

// NewSQLMockConnection returns a gorm-backed connection of dbType ("postgres" or "mysql")
// whose statements are checked by the returned sqlmock.
func NewSQLMockConnection(t *testing.T, dbType string) (database.DBConnection, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	var dialector gorm.Dialector
	switch dbType {
	case "postgres":
		dialector = gormpostgres.New(gormpostgres.Config{Conn: sqlDB})
	case "mysql":
		dialector = gormmysql.New(gormmysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true})
	default:
		t.Fatalf("unsupported sqlmock dialect %q", dbType)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gdb, dbconfig.DatabaseConfig{Type: dbType}, "mock_"+dbType)
	require.NoError(t, err)
	return conn, mock
}
