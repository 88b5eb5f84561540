package reader_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/internal/step/reader"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	testutil "github.com/tigerroll/taxiemissions/pkg/batch/test"
)

func TestNewTripTableReader_RejectsBadTable(t *testing.T) {
	_, err := reader.NewTripTableReader("r", testutil.StaticResolver{}, "workload", "yellow_trips; DROP TABLE x")
	assert.Error(t, err)
}

func TestTripTableReader_KeepsColumnOrder(t *testing.T) {
	ctx := context.Background()
	resolver := testutil.NewSQLiteResolver(t, "workload")
	conn := testutil.MustResolve(t, resolver, "workload")
	_, err := conn.Exec(ctx, `CREATE TABLE "order" (trip_distance REAL, passenger_count INTEGER, tpep_pickup_datetime TEXT)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO "order" VALUES (2.5, 1, '2021-03-01 08:15:00'), (NULL, 2, NULL)`)
	require.NoError(t, err)

	r, err := reader.NewTripTableReader("yellowReader", resolver, "workload", "order")
	require.NoError(t, err)
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	assert.Equal(t, []string{"trip_distance", "passenger_count", "tpep_pickup_datetime"}, r.Columns())

	var rows []*entity.TripRow
	for {
		row, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			break
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
	require.NoError(t, r.Close(ctx))

	require.Len(t, rows, 2)
	assert.Equal(t, r.Columns(), rows[0].Columns)
	assert.EqualValues(t, 2.5, rows[0].Values[0])
	assert.EqualValues(t, 1, rows[0].Values[1])
	assert.Nil(t, rows[1].Values[0])
	assert.Nil(t, rows[1].Values[2])

	n, _ := r.ExecutionContext().GetInt("yellowReader.read_count")
	assert.Equal(t, 2, n)
}

func TestTripTableReader_MissingTable(t *testing.T) {
	resolver := testutil.NewSQLiteResolver(t, "workload")
	r, err := reader.NewTripTableReader("r", resolver, "workload", "green_trips")
	require.NoError(t, err)
	assert.Error(t, r.Open(context.Background(), model.NewExecutionContext()))
}

func readAll(t *testing.T, r *reader.TripTableReader) []*entity.TripRow {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	defer r.Close(ctx)
	var rows []*entity.TripRow
	for {
		row, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestTripTableReader_TimestampColumnsReadAsWallClock(t *testing.T) {
	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	resolver := testutil.NewSQLiteResolver(t, "workload")
	conn := testutil.MustResolve(t, resolver, "workload")

	for _, colType := range []string{"TIMESTAMP", "TEXT"} {
		t.Run(colType, func(t *testing.T) {
			table := "yellow_trips_" + colType
			_, err := conn.Exec(ctx, `CREATE TABLE `+table+` (tpep_pickup_datetime `+colType+`, tpep_dropoff_datetime `+colType+`, trip_distance REAL)`)
			require.NoError(t, err)
			_, err = conn.Exec(ctx, `INSERT INTO `+table+` VALUES ('2023-07-04 14:30:00', '2023-07-04 15:00:00', 30.0)`)
			require.NoError(t, err)

			r, err := reader.NewTripTableReader("r", resolver, "workload", table)
			require.NoError(t, err)
			rows := readAll(t, r)
			require.Len(t, rows, 1)

			out, err := trip.Enrich(rows[0], trip.Yellow, 400, ny)
			require.NoError(t, err)
			hour, _ := out.Get(entity.ColHourOfDay)
			dow, _ := out.Get(entity.ColDayOfWeek)
			mph, _ := out.Get(entity.ColAvgMph)
			assert.Equal(t, int64(14), hour)
			assert.Equal(t, int64(2), dow)
			assert.InDelta(t, 60.0, mph, 1e-9)
		})
	}
}
