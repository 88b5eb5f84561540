package tasklet_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	testutil "github.com/tigerroll/taxiemissions/pkg/batch/test"
)

const (
	createYellowTrips = `CREATE TABLE yellow_trips (
		VendorID INTEGER, tpep_pickup_datetime TEXT, tpep_dropoff_datetime TEXT,
		passenger_count INTEGER, trip_distance REAL)`
	createYellowTransformed = `CREATE TABLE %s (
		VendorID INTEGER, tpep_pickup_datetime TEXT, tpep_dropoff_datetime TEXT,
		passenger_count INTEGER, trip_distance REAL,
		trip_co2_kgs REAL, avg_mph REAL, hour_of_day INTEGER, day_of_week INTEGER,
		week_of_year INTEGER, month_of_year INTEGER, year INTEGER)`
)

// Three clean yellow trips and their transform at 404 g/mi.
var (
	yellowSource = []string{
		"(1, '2021-03-01 08:00:00', '2021-03-01 08:30:00', 1, 2.0)",
		"(2, '2021-03-02 18:00:00', '2021-03-02 19:00:00', 2, 10.0)",
		"(1, '2022-07-04 08:30:00', '2022-07-04 08:30:00', 1, 1.0)",
	}
	yellowTransformed = []string{
		"(1, '2021-03-01 08:00:00', '2021-03-01 08:30:00', 1, 2.0, 0.808, 4.0, 8, 1, 9, 3, 2021)",
		"(2, '2021-03-02 18:00:00', '2021-03-02 19:00:00', 2, 10.0, 4.04, 10.0, 18, 2, 9, 3, 2021)",
		"(1, '2022-07-04 08:30:00', '2022-07-04 08:30:00', 1, 1.0, 0.404, NULL, 8, 1, 27, 7, 2022)",
	}
)

func newWorkload(t *testing.T) (database.DBConnectionResolver, database.DBConnection) {
	t.Helper()
	resolver := testutil.NewSQLiteResolver(t, "workload")
	return resolver, testutil.MustResolve(t, resolver, "workload")
}

func exec(t *testing.T, conn database.DBConnection, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := conn.Exec(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

func insert(t *testing.T, conn database.DBConnection, table string, rows ...string) {
	t.Helper()
	for _, r := range rows {
		exec(t, conn, "INSERT INTO "+table+" VALUES "+r)
	}
}

func createTransformed(t *testing.T, conn database.DBConnection, table string) {
	t.Helper()
	exec(t, conn, fmt.Sprintf(createYellowTransformed, table))
}

func newStepExecution(stepName string) *model.StepExecution {
	return testutil.NewTestStepExecution(testutil.NewTestJobExecution("taxiEmissionsJob"), stepName)
}

func yellowTo(target string) trip.Variant {
	v := trip.Yellow
	v.Target = target
	return v
}
