package tasklet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tigerroll/taxiemissions/internal/domain/emissions"
	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

const seedTaskletName = "seed_emissions_tasklet"

// SeedEmissionsTasklet upserts the vehicle_emissions rows of a CSV file, keyed on vehicle_type.
// Rows already in the table and absent from the file are kept.
type SeedEmissionsTasklet struct {
	resolver database.DBConnectionResolver
	dbRef    string
	embedded []byte
	seedFile string
}

var _ port.Tasklet = (*SeedEmissionsTasklet)(nil)

// NewSeedEmissionsTasklet seeds from seedFile when set, otherwise from embedded.
func NewSeedEmissionsTasklet(resolver database.DBConnectionResolver, dbRef string, embedded []byte, seedFile string) *SeedEmissionsTasklet {
	return &SeedEmissionsTasklet{resolver: resolver, dbRef: dbRef, embedded: embedded, seedFile: seedFile}
}

func (t *SeedEmissionsTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	src, name, err := t.open()
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(seedTaskletName, "failed to open emissions seed", err, false, false)
	}
	defer src.Close()

	factors, err := emissions.ParseSeed(src)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(seedTaskletName, fmt.Sprintf("invalid emissions seed %s", name), err, false, false)
	}
	if len(factors) == 0 {
		logger.Warnf("SeedEmissionsTasklet: %s has no rows; vehicle_emissions left as is.", name)
		stepExecution.ExecutionContext.Put("seed.rows", 0)
		return model.ExitStatusNoOp, nil
	}

	conn, err := t.resolver.ResolveDBConnection(ctx, t.dbRef)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(seedTaskletName, fmt.Sprintf("failed to resolve connection '%s'", t.dbRef), err, false, false)
	}
	if _, err := conn.ExecuteUpsert(ctx, &factors, entity.EmissionsFactor{}.TableName(), []string{"vehicle_type"}, []string{"co2_grams_per_mile"}); err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(seedTaskletName, "failed to upsert vehicle_emissions", err, exception.IsTemporary(err), false)
	}

	for _, f := range factors {
		logger.Infof("SeedEmissionsTasklet: %s = %.2f g CO2/mile", f.VehicleType, f.CO2GramsPerMile)
	}
	stepExecution.ExecutionContext.Put("seed.source", name)
	stepExecution.ExecutionContext.Put("seed.rows", len(factors))
	return model.ExitStatusCompleted, nil
}

func (t *SeedEmissionsTasklet) open() (io.ReadCloser, string, error) {
	if t.seedFile != "" {
		f, err := os.Open(t.seedFile)
		return f, t.seedFile, err
	}
	if len(t.embedded) == 0 {
		return nil, "", fmt.Errorf("no seed file configured and no embedded seed")
	}
	return io.NopCloser(bytes.NewReader(t.embedded)), "embedded vehicle_emissions.csv", nil
}
