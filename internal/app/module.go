// Package app wires the batch framework and the taxi emissions job into one fx application.
package app

import (
	"go.uber.org/fx"

	appconfig "github.com/tigerroll/taxiemissions/internal/config"
	"github.com/tigerroll/taxiemissions/internal/job"
	gormadapter "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/config/bootstrap"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/job/runner"
	"github.com/tigerroll/taxiemissions/pkg/batch/engine/step/factory"
	"github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository"
	batchlistener "github.com/tigerroll/taxiemissions/pkg/batch/listener"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// DatabaseModule registers every supported database type. A connection's "type" picks one.
var DatabaseModule = fx.Options(
	gormadapter.Module,
	sqlite.Module,
	postgres.Module,
	mysql.Module,
)

// StorageModule registers the local and GCS storage types.
var StorageModule = fx.Options(
	storage.Module,
	local.Module,
	gcs.Module,
)

// Module is everything RunApplication needs besides the supplied *config.Config,
// migrations and emissions seed.
var Module = fx.Options(
	logger.Module,
	config.Module,
	appconfig.Module,
	DatabaseModule,
	StorageModule,
	repository.Module,
	metrics.Module,
	bootstrap.Module,
	batchlistener.Module,
	factory.Module,
	runner.Module,
	usecase.Module,
	job.Module,
)
