package processor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	testutil "github.com/tigerroll/taxiemissions/pkg/batch/test"
)

var yellowColumns = []string{"VendorID", "tpep_pickup_datetime", "tpep_dropoff_datetime", "passenger_count", "trip_distance"}

func yellowRow(t *testing.T, pickup, dropoff any, passengers, distance any) *entity.TripRow {
	t.Helper()
	row, err := entity.NewTripRow(yellowColumns, []any{int64(1), pickup, dropoff, passengers, distance})
	require.NoError(t, err)
	return row
}

// stepContext returns a context carrying a fresh StepExecution, as the chunk step provides.
func stepContext(stepName string) (context.Context, *model.StepExecution) {
	je := testutil.NewTestJobExecution("taxiEmissionsJob")
	se := testutil.NewTestStepExecution(je, stepName)
	return port.GetContextWithStepExecution(context.Background(), se), se
}

func seededWorkload(t *testing.T, factors string) database.DBConnectionResolver {
	t.Helper()
	resolver := testutil.NewSQLiteResolver(t, "workload")
	conn := testutil.MustResolve(t, resolver, "workload")
	ctx := context.Background()
	_, err := conn.Exec(ctx, "CREATE TABLE vehicle_emissions (vehicle_type TEXT, co2_grams_per_mile REAL NOT NULL)")
	require.NoError(t, err)
	if factors != "" {
		_, err = conn.Exec(ctx, "INSERT INTO vehicle_emissions VALUES "+factors)
		require.NoError(t, err)
	}
	return resolver
}
