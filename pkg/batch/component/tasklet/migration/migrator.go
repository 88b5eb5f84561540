package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// migratorImpl runs golang-migrate against the pool of a DBConnection.
// golang-migrate closes that pool when it is done, so callers must reconnect afterwards.
type migratorImpl struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator returns a Migrator for dbConn.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{dbConn: dbConn, dbType: dbConn.Type()}
}

func (m *migratorImpl) getDatabaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migratorImpl) getMigrateInstance(migrationFS fs.FS, path string, tableName string) (*migrate.Migrate, error) {
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.getDatabaseDriver(sqlDB, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mInstance, nil
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	logger.Infof("Applying migrations (Connection: %s, Path: %s, Table: %s).", m.dbConn.Name(), path, tableName)

	mInstance, err := m.getMigrateInstance(migrationFS, path, tableName)
	if err != nil {
		return err
	}
	defer mInstance.Close()

	// golang-migrate has no context support; GracefulStop is its cancellation hook.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mInstance.GracefulStop <- true
		case <-done:
		}
	}()

	if err := mInstance.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("Migrations on '%s' (%s): no change.", m.dbConn.Name(), path)
			return nil
		}
		if version, dirty, verr := mInstance.Version(); verr == nil {
			logger.Errorf("Migration stopped at version %d (dirty: %t).", version, dirty)
		}
		return fmt.Errorf("migration up failed (DB: %s, Path: %s): %w", m.dbType, path, err)
	}
	logger.Infof("Migrations on '%s' (%s) applied.", m.dbConn.Name(), path)
	return nil
}
