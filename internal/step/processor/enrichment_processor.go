package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/taxiemissions/internal/domain/emissions"
	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// EnrichmentProcessor appends the emissions, speed and calendar columns to each trip.
// The emissions factor is read from vehicle_emissions once per step execution.
type EnrichmentProcessor struct {
	name     string
	variant  trip.Variant
	resolver database.DBConnectionResolver
	dbRef    string
	loc      *time.Location

	schema       ColumnSource
	scope        executionScope
	gramsPerMile float64
	enriched     int
	nullSpeed    int
}

var _ port.ItemProcessor[*entity.TripRow, *entity.TripRow] = (*EnrichmentProcessor)(nil)
var _ port.ExecutionContextProvider = (*EnrichmentProcessor)(nil)
var _ port.ItemStream = (*EnrichmentProcessor)(nil)

// ColumnSource reports the columns of the rows a reader produces. It is valid once the reader is open.
type ColumnSource interface {
	Columns() []string
}

// NewEnrichmentProcessor creates the processor for variant.
//
// Parameters:
//
//	name: Step-scoped name used in logs and ExecutionContext keys.
//	variant: The dataset whose rows are enriched.
//	resolver: Resolves dbRef, the connection holding vehicle_emissions.
//	dbRef: Name of the workload connection.
//	loc: Timezone of the calendar columns. nil means UTC.
//
// Returns:
//
//	*EnrichmentProcessor: The processor. ReadsFrom lets Open check the source schema before any row is read.
func NewEnrichmentProcessor(name string, variant trip.Variant, resolver database.DBConnectionResolver, dbRef string, loc *time.Location) *EnrichmentProcessor {
	if loc == nil {
		loc = time.UTC
	}
	return &EnrichmentProcessor{name: name, variant: variant, resolver: resolver, dbRef: dbRef, loc: loc}
}

// ReadsFrom makes Open check the columns of src against the variant.
func (p *EnrichmentProcessor) ReadsFrom(src ColumnSource) *EnrichmentProcessor {
	p.schema = src
	return p
}

// Open checks the source schema and resolves the emissions factor, so that an empty source
// with a missing or ambiguous factor still fails the step.
func (p *EnrichmentProcessor) Open(ctx context.Context, _ model.ExecutionContext) error {
	p.scope = executionScope{}
	p.scope.enter(ctx)
	var columns []string
	if p.schema != nil {
		columns = p.schema.Columns()
	}
	if err := p.start(ctx, columns); err != nil {
		p.scope = executionScope{}
		return err
	}
	return nil
}

func (p *EnrichmentProcessor) Process(ctx context.Context, row *entity.TripRow) (*entity.TripRow, error) {
	if p.scope.enter(ctx) {
		if err := p.start(ctx, row.Columns); err != nil {
			p.scope = executionScope{}
			return nil, err
		}
	}
	out, err := trip.Enrich(row, p.variant, p.gramsPerMile, p.loc)
	if err != nil {
		return nil, exception.NewBatchError(p.name, fmt.Sprintf("failed to enrich %s row", p.variant.TripsSource), err, false, false)
	}
	p.enriched++
	if v, _ := out.Get(entity.ColAvgMph); v == nil {
		p.nullSpeed++
	}
	return out, nil
}

// start checks columns, when known, and resolves the factor for a new step execution.
func (p *EnrichmentProcessor) start(ctx context.Context, columns []string) error {
	p.enriched, p.nullSpeed, p.gramsPerMile = 0, 0, 0
	if columns != nil {
		if err := trip.CheckSchema(columns, p.variant); err != nil {
			return exception.NewBatchError(p.name, "source schema does not fit the transform", err, false, false)
		}
	}
	conn, err := p.resolver.ResolveDBConnection(ctx, p.dbRef)
	if err != nil {
		return exception.NewBatchError(p.name, fmt.Sprintf("failed to resolve connection '%s'", p.dbRef), err, false, false)
	}
	lookup, err := emissions.LoadLookup(ctx, conn)
	if err != nil {
		return err
	}
	g, err := lookup.Factor(p.variant.VehicleType)
	if err != nil {
		return exception.NewBatchError(p.name, "cannot resolve the emissions factor", err, false, false)
	}
	p.gramsPerMile = g
	logger.Infof("EnrichmentProcessor '%s': %s emits %.2f g CO2 per mile.", p.name, p.variant.VehicleType, g)
	return nil
}

func (p *EnrichmentProcessor) ExecutionContext() model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(p.name+".enriched", p.enriched)
	ec.Put(p.name+".null_avg_mph", p.nullSpeed)
	ec.Put(p.name+".co2_grams_per_mile", p.gramsPerMile)
	return ec
}
