// Package repository selects the JobRepository implementation from configuration.
package repository

import (
	"go.uber.org/fx"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	domain "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	"github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// JobRepositoryParams are the dependencies of NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Infra      *config.InfrastructureConfig
	DBResolver database.DBConnectionResolver
}

// NewJobRepository returns the SQL repository on infrastructure.job_repository_db_ref,
// or the in-memory repository when no reference is configured.
func NewJobRepository(p JobRepositoryParams) domain.JobRepository {
	var repo domain.JobRepository
	if ref := p.Infra.JobRepositoryDBRef; ref != "" {
		logger.Infof("JobRepository: using database connection '%s'.", ref)
		repo = sqlrepo.NewSQLJobRepository(p.DBResolver, ref)
	} else {
		logger.Infof("JobRepository: no job_repository_db_ref configured, keeping execution metadata in memory.")
		repo = inmemory.NewInMemoryJobRepository()
	}
	p.Lifecycle.Append(fx.StopHook(repo.Close))
	return repo
}

// Module provides domain.JobRepository.
var Module = fx.Provide(NewJobRepository)
