// Package job assembles taxiEmissionsJob from the steps of internal/step.
package job

import (
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/fx"

	appconfig "github.com/tigerroll/taxiemissions/internal/config"
	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/internal/step/processor"
	"github.com/tigerroll/taxiemissions/internal/step/reader"
	"github.com/tigerroll/taxiemissions/internal/step/tasklet"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	"github.com/tigerroll/taxiemissions/pkg/batch/component/step/writer"
	"github.com/tigerroll/taxiemissions/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/job/runner"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/job/split"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
	tx "github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
	"github.com/tigerroll/taxiemissions/pkg/batch/engine/step/factory"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// JobName is the name taxiEmissionsJob is registered and launched under.
const JobName = "taxiEmissionsJob"

// EmissionsSeed is the embedded vehicle_emissions.csv.
type EmissionsSeed []byte

// JobParams are the dependencies of NewTaxiEmissionsJob.
type JobParams struct {
	fx.In
	Cfg             *config.Config
	Trips           *appconfig.TripsConfig
	StepFactory     *factory.StepFactory
	DBResolver      database.DBConnectionResolver
	StorageResolver storage.StorageConnectionResolver
	TxFactory       tx.TransactionManagerFactory
	MigrationsFS    fs.FS `name:"applicationMigrationsFS"`
	Seed            EmissionsSeed
	JobListeners    []port.JobExecutionListener `group:"job_listeners"`
	MetricRecorder  metrics.MetricRecorder
	Tracer          metrics.Tracer
}

// NewTaxiEmissionsJob builds the job:
//
//	migrateStep -> seedEmissionsStep -> tripFlows -> analysisStep
//
// where tripFlows runs one flow per variant, in parallel:
//
//	summary -> clean -> verifyCleaning -> transform -> verifyTransform -> export
//
// clean and export are left out when disabled in application.trips.
func NewTaxiEmissionsJob(p JobParams) (port.Job, error) {
	loc, err := p.Cfg.Surfin.System.Location()
	if err != nil {
		return nil, err
	}
	b := &builder{p: p, trips: p.Trips, loc: loc}

	migrate, err := migration.NewMigrationTasklet(p.DBResolver, migration.Options{DBRef: b.trips.WorkloadDBRef, FS: p.MigrationsFS})
	if err != nil {
		return nil, err
	}
	seed := tasklet.NewSeedEmissionsTasklet(p.DBResolver, b.trips.WorkloadDBRef, p.Seed, b.trips.Emissions.SeedFile)

	flows := make(map[string][]port.Step, len(b.trips.Variants))
	for _, v := range b.trips.Variants {
		steps, err := b.flow(v)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", v.Name, err)
		}
		flows[v.Name] = steps
	}

	var upload *tasklet.ReportUpload
	if b.trips.Export.Enabled {
		upload = &tasklet.ReportUpload{
			Resolver:   p.StorageResolver,
			StorageRef: b.trips.Export.StorageRef,
			Bucket:     b.trips.Export.Bucket,
			Object:     b.trips.Analysis.ReportObject,
		}
	}
	analysis := tasklet.NewAnalysisTasklet(p.DBResolver, b.trips.WorkloadDBRef, b.trips.Variants, loc, upload)

	elements := []port.FlowElement{
		p.StepFactory.CreateTaskletStep("migrateStep", migrate),
		p.StepFactory.CreateTaskletStep("seedEmissionsStep", seed),
		split.NewConcreteSplit("tripFlows", flows, b.trips.MaxParallel),
		p.StepFactory.CreateTaskletStep("analysisStep", analysis),
	}
	logger.Debugf("Job '%s' built with %d variant flows.", JobName, len(flows))
	return runner.NewFlowJob(JobName, elements, p.StepFactory.JobRepository(), p.JobListeners, p.MetricRecorder, p.Tracer, rejectParameters), nil
}

// rejectParameters refuses job parameters; the job is configured through application.yaml only.
func rejectParameters(params model.JobParameters) error {
	if len(params.Params) > 0 {
		return fmt.Errorf("%s takes no job parameters, got %d", JobName, len(params.Params))
	}
	return nil
}

type builder struct {
	p     JobParams
	trips *appconfig.TripsConfig
	loc   *time.Location
}

// derivedColumns are the columns the transform appends to the source schema.
var derivedColumns = []writer.Column{
	{Name: entity.ColTripCO2Kgs, Kind: writer.KindFloat},
	{Name: entity.ColAvgMph, Kind: writer.KindFloat},
	{Name: entity.ColHourOfDay, Kind: writer.KindInt},
	{Name: entity.ColDayOfWeek, Kind: writer.KindInt},
	{Name: entity.ColWeekOfYear, Kind: writer.KindInt},
	{Name: entity.ColMonthOfYear, Kind: writer.KindInt},
	{Name: entity.ColYear, Kind: writer.KindInt},
}

func (b *builder) flow(v trip.Variant) ([]port.Step, error) {
	f := b.p.StepFactory
	dbRef := b.trips.WorkloadDBRef
	steps := []port.Step{
		f.CreateTaskletStep(v.Name+"SummaryStep", tasklet.NewSourceSummaryTasklet(b.p.DBResolver, dbRef, v, b.loc)),
	}

	if b.trips.Cleaning.Enabled {
		clean, err := b.cleanStep(v)
		if err != nil {
			return nil, err
		}
		steps = append(steps, clean)
	}
	steps = append(steps, f.CreateTaskletStep(v.Name+"VerifyCleaningStep",
		tasklet.NewVerifyCleaningTasklet(b.p.DBResolver, dbRef, v, b.trips.Cleaning.CleaningRules, b.loc, b.trips.Verification.FailOnViolation)))

	transform, err := b.transformStep(v)
	if err != nil {
		return nil, err
	}
	steps = append(steps, transform,
		f.CreateTaskletStep(v.Name+"VerifyTransformStep", tasklet.NewVerifyTransformTasklet(b.p.DBResolver, dbRef, v)))

	if b.trips.Export.Enabled {
		export, err := b.exportStep(v)
		if err != nil {
			return nil, err
		}
		steps = append(steps, export)
	}
	return steps, nil
}

// cleanStep rewrites the source table in place with the rows that pass the cleaning rules.
func (b *builder) cleanStep(v trip.Variant) (port.Step, error) {
	name := v.Name + "CleanStep"
	dbRef := b.trips.WorkloadDBRef
	r, err := reader.NewTripTableReader(name+".reader", b.p.DBResolver, dbRef, v.TripsSource)
	if err != nil {
		return nil, err
	}
	w, err := writer.NewTableReplaceWriter[*entity.TripRow](name+".writer", writer.TableReplaceConfig{
		DBRef:        dbRef,
		Target:       v.TripsSource,
		SchemaSource: v.TripsSource,
	}, b.p.DBResolver, b.p.TxFactory.NewTransactionManager(dbRef))
	if err != nil {
		return nil, err
	}
	proc := processor.NewCleaningProcessor(name+".processor", v, b.trips.Cleaning.CleaningRules, b.loc)
	return factory.CreateChunkStep[*entity.TripRow, *entity.TripRow](b.p.StepFactory, name, dbRef, r, proc, w), nil
}

// transformStep materialises <source> plus the derived columns into the variant's target.
func (b *builder) transformStep(v trip.Variant) (port.Step, error) {
	name := v.Name + "TransformStep"
	dbRef := b.trips.WorkloadDBRef
	r, err := reader.NewTripTableReader(name+".reader", b.p.DBResolver, dbRef, v.TripsSource)
	if err != nil {
		return nil, err
	}
	w, err := writer.NewTableReplaceWriter[*entity.TripRow](name+".writer", writer.TableReplaceConfig{
		DBRef:        dbRef,
		Target:       v.Target,
		SchemaSource: v.TripsSource,
		ExtraColumns: derivedColumns,
	}, b.p.DBResolver, b.p.TxFactory.NewTransactionManager(dbRef))
	if err != nil {
		return nil, err
	}
	proc := processor.NewEnrichmentProcessor(name+".processor", v, b.p.DBResolver, dbRef, b.loc).ReadsFrom(r)
	return factory.CreateChunkStep[*entity.TripRow, *entity.TripRow](b.p.StepFactory, name, dbRef, r, proc, w), nil
}

// exportStep writes the target table as Parquet files partitioned by year and month.
func (b *builder) exportStep(v trip.Variant) (port.Step, error) {
	name := v.Name + "ExportStep"
	dbRef := b.trips.WorkloadDBRef
	r, err := reader.NewTripTableReader(name+".reader", b.p.DBResolver, dbRef, v.Target)
	if err != nil {
		return nil, err
	}
	w, err := writer.NewParquetWriter(name+".writer", b.trips.Export.ParquetWriterConfig(v.Name), b.p.StorageResolver,
		new(entity.TripEmissionsRecord), processor.PartitionKey)
	if err != nil {
		return nil, err
	}
	proc := processor.NewExportProcessor(v, b.loc)
	return factory.CreateChunkStep[*entity.TripRow, entity.TripEmissionsRecord](b.p.StepFactory, name, dbRef, r, proc, w), nil
}
