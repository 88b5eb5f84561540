package job_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/tigerroll/taxiemissions/internal/config"
	"github.com/tigerroll/taxiemissions/internal/domain/emissions"
	"github.com/tigerroll/taxiemissions/internal/job"
	"github.com/tigerroll/taxiemissions/internal/step/tasklet"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/local"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/engine/step/factory"
	"github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository/inmemory"
	testutil "github.com/tigerroll/taxiemissions/pkg/batch/test"
)

const resourcesDir = "../../cmd/taxiemissions/resources"

type fixture struct {
	cfg     *config.Config
	trips   *appconfig.TripsConfig
	db      database.DBConnectionResolver
	exports storage.StorageConnectionResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testutil.NewSQLiteConfig(t, "workload")
	cfg.Surfin.Batch.ChunkSize = 2
	cfg.Surfin.Adapter.Storage["exports"] = map[string]interface{}{
		"type":        "local",
		"base_dir":    t.TempDir(),
		"bucket_name": "taxi-emissions",
	}
	db := testutil.NewResolverFor(t, cfg)
	exports := storage.NewConnectionResolver(storage.ResolverParams{
		Providers: []storage.StorageProvider{local.NewLocalProvider(cfg)},
		Cfg:       cfg,
	})
	t.Cleanup(func() { _ = exports.CloseAll() })

	trips := appconfig.DefaultTripsConfig()
	trips.MaxParallel = 1
	trips.Export.Enabled = true

	f := &fixture{cfg: cfg, trips: &trips, db: db, exports: exports}
	f.exec(t,
		`CREATE TABLE yellow_trips (VendorID INTEGER, tpep_pickup_datetime TEXT, tpep_dropoff_datetime TEXT, passenger_count INTEGER, trip_distance REAL)`,
		`INSERT INTO yellow_trips VALUES
			(1, '2021-03-01 08:00:00', '2021-03-01 08:30:00', 1, 2.0),
			(2, '2021-03-02 18:00:00', '2021-03-02 19:00:00', 2, 10.0),
			(2, '2021-03-02 18:00:00', '2021-03-02 19:00:00', 2, 10.0),
			(1, '2021-04-10 23:10:00', '2021-04-10 23:40:00', 0, 3.0),
			(1, '2022-07-04 08:30:00', '2022-07-04 08:45:00', 1, 1.0)`,
		`CREATE TABLE green_trips (VendorID INTEGER, lpep_pickup_datetime TEXT, lpep_dropoff_datetime TEXT, passenger_count INTEGER, trip_distance REAL)`,
		`INSERT INTO green_trips VALUES
			(2, '2021-05-01 12:00:00', '2021-05-01 12:20:00', 1, 3.0),
			(2, '2021-05-01 13:00:00', '2021-05-01 13:20:00', 1, NULL)`,
	)
	return f
}

// conn resolves the workload connection anew; the migration step replaces its pool.
func (f *fixture) conn(t *testing.T) database.DBConnection {
	t.Helper()
	return testutil.MustResolve(t, f.db, "workload")
}

func (f *fixture) exec(t *testing.T, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := f.conn(t).Exec(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn(t).Raw(context.Background(), &n, "SELECT COUNT(*) FROM "+table))
	return n
}

func (f *fixture) newJob(t *testing.T) port.Job {
	t.Helper()
	require.NoError(t, f.trips.Validate())
	seed, err := os.ReadFile(filepath.Join(resourcesDir, "vehicle_emissions.csv"))
	require.NoError(t, err)

	repo := inmemory.NewInMemoryJobRepository()
	txf := gormadapter.NewGormTransactionManagerFactory(f.db)
	j, err := job.NewTaxiEmissionsJob(job.JobParams{
		Cfg:   f.cfg,
		Trips: f.trips,
		StepFactory: factory.NewStepFactory(factory.StepFactoryParams{
			JobRepository: repo,
			TxFactory:     txf,
			Batch:         &f.cfg.Surfin.Batch,
		}),
		DBResolver:      f.db,
		StorageResolver: f.exports,
		TxFactory:       txf,
		MigrationsFS:    os.DirFS(filepath.Join(resourcesDir, "migrations")),
		Seed:            job.EmissionsSeed(seed),
	})
	require.NoError(t, err)
	return j
}

func run(t *testing.T, j port.Job) (*model.JobExecution, error) {
	t.Helper()
	je := testutil.NewTestJobExecution(job.JobName)
	err := j.Run(context.Background(), je)
	return je, err
}

func stepExecution(t *testing.T, je *model.JobExecution, name string) *model.StepExecution {
	t.Helper()
	for _, se := range je.StepExecutions {
		if se.StepName == name {
			return se
		}
	}
	t.Fatalf("no step execution named %s", name)
	return nil
}

func TestTaxiEmissionsJob_RunsEndToEnd(t *testing.T) {
	f := newFixture(t)
	j := f.newJob(t)
	assert.Equal(t, job.JobName, j.JobName())

	je, err := run(t, j)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)

	clean := stepExecution(t, je, "yellowCleanStep")
	assert.Equal(t, 5, clean.ReadCount)
	assert.Equal(t, 3, clean.WriteCount)
	dupes, _ := clean.ExecutionContext.GetInt("yellowCleanStep.processor.duplicates")
	assert.Equal(t, 1, dupes)
	assert.Equal(t, model.ExitStatusCompleted, stepExecution(t, je, "yellowVerifyCleaningStep").ExitStatus)

	assert.Equal(t, int64(3), f.count(t, "yellow_trips"))
	assert.Equal(t, int64(3), f.count(t, "yellow_trips_transformed"))
	assert.Equal(t, int64(1), f.count(t, "green_trips"), "the trip without distance is cleaned away")
	assert.Equal(t, int64(1), f.count(t, "green_trips_transformed"))

	var co2 float64
	require.NoError(t, f.conn(t).Raw(context.Background(), &co2,
		"SELECT trip_co2_kgs FROM yellow_trips_transformed WHERE trip_distance = 10.0"))
	assert.InDelta(t, 4.04, co2, 1e-9)
	var week int
	require.NoError(t, f.conn(t).Raw(context.Background(), &week,
		"SELECT week_of_year FROM yellow_trips_transformed WHERE year = 2022"))
	assert.Equal(t, 27, week)

	sc, err := f.exports.ResolveStorageConnection(context.Background(), "exports")
	require.NoError(t, err)
	var objects []string
	require.NoError(t, sc.ListObjects(context.Background(), "", "", func(name string) error {
		objects = append(objects, name)
		return nil
	}))
	assert.Contains(t, objects, "reports/emissions_analysis.json")
	for _, prefix := range []string{
		"trips_transformed/yellow/year=2021/month=03/",
		"trips_transformed/yellow/year=2022/month=07/",
		"trips_transformed/green/year=2021/month=05/",
	} {
		found := false
		for _, o := range objects {
			if strings.HasPrefix(o, prefix) && strings.HasSuffix(o, ".parquet") {
				found = true
			}
		}
		assert.True(t, found, "no parquet file under %s in %v", prefix, objects)
	}
	n, _ := stepExecution(t, je, "analysisStep").ExecutionContext.GetInt("analysis.variants")
	assert.Equal(t, 2, n)
}

func TestTaxiEmissionsJob_RerunIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first, err := run(t, f.newJob(t))
	require.NoError(t, err)
	second, err := run(t, f.newJob(t))
	require.NoError(t, err)

	for _, name := range []string{"yellowVerifyTransformStep", "greenVerifyTransformStep"} {
		a, _ := stepExecution(t, first, name).ExecutionContext.GetString("verify.fingerprint")
		b, _ := stepExecution(t, second, name).ExecutionContext.GetString("verify.fingerprint")
		assert.NotEmpty(t, a)
		assert.Equal(t, a, b, name)
	}
	assert.Equal(t, int64(3), f.count(t, "yellow_trips_transformed"))
}

func TestTaxiEmissionsJob_WithoutCleaning(t *testing.T) {
	f := newFixture(t)
	f.trips.Cleaning.Enabled = false
	f.trips.Export.Enabled = false

	je, err := run(t, f.newJob(t))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)

	verify := stepExecution(t, je, "greenVerifyCleaningStep")
	assert.Equal(t, tasklet.ExitStatusCompletedWithViolations, verify.ExitStatus)
	assert.Equal(t, int64(5), f.count(t, "yellow_trips_transformed"))
	assert.Equal(t, int64(2), f.count(t, "green_trips_transformed"))

	nulls, _ := stepExecution(t, je, "greenVerifyTransformStep").ExecutionContext.GetInt64("verify.nulls.trip_co2_kgs")
	assert.Equal(t, int64(1), nulls)
	for _, se := range je.StepExecutions {
		assert.NotContains(t, se.StepName, "Export")
	}
}

func TestTaxiEmissionsJob_MissingFactorFailsItsFlowOnly(t *testing.T) {
	f := newFixture(t)
	seed := filepath.Join(t.TempDir(), "factors.csv")
	require.NoError(t, os.WriteFile(seed, []byte("vehicle_type,co2_grams_per_mile\nyellow_taxi,404\n"), 0o600))
	f.trips.Emissions.SeedFile = seed

	je, err := run(t, f.newJob(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, emissions.ErrFactorNotFound)
	assert.Contains(t, err.Error(), "flow 'green'")
	assert.Equal(t, model.BatchStatusFailed, je.Status)

	assert.Equal(t, int64(3), f.count(t, "yellow_trips_transformed"))
	var tables int64
	require.NoError(t, f.conn(t).Raw(context.Background(), &tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE name LIKE 'green_trips_transformed%'"))
	assert.Zero(t, tables)
}

func TestTaxiEmissionsJob_MissingFactorFailsOnEmptySource(t *testing.T) {
	f := newFixture(t)
	f.exec(t, `DELETE FROM green_trips`)
	seed := filepath.Join(t.TempDir(), "factors.csv")
	require.NoError(t, os.WriteFile(seed, []byte("vehicle_type,co2_grams_per_mile\nyellow_taxi,404\n"), 0o600))
	f.trips.Emissions.SeedFile = seed

	je, err := run(t, f.newJob(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, emissions.ErrFactorNotFound)
	assert.Contains(t, err.Error(), "flow 'green'")
	assert.Equal(t, model.BatchStatusFailed, je.Status)

	transform := stepExecution(t, je, "greenTransformStep")
	assert.Equal(t, model.BatchStatusFailed, transform.Status)
	assert.Zero(t, transform.ReadCount)
	var tables int64
	require.NoError(t, f.conn(t).Raw(context.Background(), &tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE name LIKE 'green_trips_transformed%'"))
	assert.Zero(t, tables)
}

func TestTaxiEmissionsJob_RejectsParameters(t *testing.T) {
	j := newFixture(t).newJob(t)
	assert.NoError(t, j.ValidateParameters(model.NewJobParameters()))
	assert.Error(t, j.ValidateParameters(testutil.NewTestJobParameters(map[string]interface{}{"date": "2021-01-01"})))
}
