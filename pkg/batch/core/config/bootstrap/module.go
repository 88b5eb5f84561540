// Package bootstrap applies process-wide settings and prepares the metadata schema before a job starts.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/taxiemissions/pkg/batch/component/tasklet/migration/filesystem"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// ApplyLoggingConfigHook applies the configured log level.
func ApplyLoggingConfigHook(cfg *config.LoggingConfig) {
	if cfg.Level == "" {
		return
	}
	logger.SetLogLevel(cfg.Level)
	logger.Infof("Log level set to: %s", logger.GetLogLevel())
}

// RunFrameworkMigrationsHookParams are the dependencies of runFrameworkMigrationsHook.
type RunFrameworkMigrationsHookParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Infra      *config.InfrastructureConfig
	DBResolver database.DBConnectionResolver
}

// runFrameworkMigrationsHook creates the metadata tables on the job repository connection at startup.
func runFrameworkMigrationsHook(p RunFrameworkMigrationsHookParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ref := p.Infra.JobRepositoryDBRef
			if ref == "" {
				logger.Debugf("JobRepositoryDBRef is not configured. Framework migrations skipped.")
				return nil
			}
			return RunFrameworkMigrations(ctx, p.DBResolver, ref)
		},
	})
}

// RunFrameworkMigrations applies the embedded framework migrations on connection ref
// and re-establishes the connection afterwards.
func RunFrameworkMigrations(ctx context.Context, resolver database.DBConnectionResolver, ref string) error {
	logger.Infof("Running framework migrations for JobRepository database: %s", ref)
	conn, err := resolver.ResolveDBConnection(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to get DB connection for framework migrations: %w", err)
	}

	migrationErr := migration.NewMigrator(conn).Up(ctx, filesystem.FrameworkMigrationsFS(), conn.Type(), migration.FrameworkMigrationsTable)

	if _, err := resolver.ResolveDBConnection(ctx, ref); err != nil {
		return fmt.Errorf("failed to re-establish DB connection '%s' after framework migrations: %w", ref, err)
	}
	if migrationErr != nil {
		return fmt.Errorf("failed to execute framework migrations for %s: %w", ref, migrationErr)
	}
	return nil
}

// Module applies logging configuration and runs framework migrations on start.
var Module = fx.Options(
	fx.Invoke(ApplyLoggingConfigHook),
	fx.Invoke(runFrameworkMigrationsHook),
)
