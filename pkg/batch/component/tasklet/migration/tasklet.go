package migration

import (
	"context"
	"io/fs"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

const taskletName = "migration_tasklet"

// Options configure a MigrationTasklet.
type Options struct {
	// DBRef is the connection to migrate.
	DBRef string
	// FS holds one directory of migration files per database type.
	FS fs.FS
	// Dir overrides the directory inside FS. Defaults to the connection's database type.
	Dir string
	// Table records applied versions. Defaults to AppMigrationsTable.
	Table string
}

// MigrationTasklet applies pending migrations and then re-establishes the connection,
// whose pool golang-migrate closes on exit.
type MigrationTasklet struct {
	dbResolver  database.DBConnectionResolver
	opts        Options
	newMigrator func(database.DBConnection) Migrator
}

// NewMigrationTasklet validates opts and returns the tasklet.
func NewMigrationTasklet(dbResolver database.DBConnectionResolver, opts Options) (*MigrationTasklet, error) {
	if opts.DBRef == "" {
		return nil, exception.NewBatchErrorf(taskletName, "DBRef is required")
	}
	if opts.FS == nil {
		return nil, exception.NewBatchErrorf(taskletName, "migration FS is required for connection '%s'", opts.DBRef)
	}
	if opts.Table == "" {
		opts.Table = AppMigrationsTable
	}
	return &MigrationTasklet{dbResolver: dbResolver, opts: opts, newMigrator: NewMigrator}, nil
}

var _ port.Tasklet = (*MigrationTasklet)(nil)

// Execute runs "up" against the configured connection.
func (t *MigrationTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	conn, err := t.dbResolver.ResolveDBConnection(ctx, t.opts.DBRef)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(taskletName, "failed to resolve connection '"+t.opts.DBRef+"'", err, false, false)
	}

	dir := t.opts.Dir
	if dir == "" {
		dir = conn.Type()
		logger.Debugf("Using DB type '%s' as migration directory.", dir)
	}

	migrateErr := t.newMigrator(conn).Up(ctx, t.opts.FS, dir, t.opts.Table)

	// Reconnect whether or not the migration succeeded.
	fresh, err := t.dbResolver.ResolveDBConnection(ctx, t.opts.DBRef)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(taskletName, "failed to re-establish connection after migration", err, false, false)
	}
	if migrateErr != nil {
		return model.ExitStatusFailed, exception.NewBatchError(taskletName, "migration 'up' failed", migrateErr, false, false)
	}

	stepExecution.ExecutionContext.Put("migration.connection", fresh.Name())
	stepExecution.ExecutionContext.Put("migration.dir", dir)
	return model.ExitStatusCompleted, nil
}
