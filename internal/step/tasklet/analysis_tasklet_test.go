package tasklet_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/internal/step/tasklet"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/local"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

func newExportStorage(t *testing.T) storage.StorageConnectionResolver {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.Adapter.Storage["exports"] = map[string]interface{}{
		"type":        "local",
		"base_dir":    t.TempDir(),
		"bucket_name": "taxi-emissions",
	}
	r := storage.NewConnectionResolver(storage.ResolverParams{
		Providers: []storage.StorageProvider{local.NewLocalProvider(cfg)},
		Cfg:       cfg,
	})
	t.Cleanup(func() { _ = r.CloseAll() })
	return r
}

func TestAnalysisTasklet_Analyze(t *testing.T) {
	resolver, conn := newWorkload(t)
	createTransformed(t, conn, "yellow_trips_transformed")
	insert(t, conn, "yellow_trips_transformed", yellowTransformed...)
	createTransformed(t, conn, "green_trips_transformed")
	insert(t, conn, "green_trips_transformed",
		"(2, '2021-05-01 12:00:00', '2021-05-01 12:20:00', 1, 3.0, 1.068, 9.0, 12, 6, 17, 5, 2021)")

	green := trip.Green
	green.PickupField, green.DropoffField = "tpep_pickup_datetime", "tpep_dropoff_datetime"
	report, err := tasklet.NewAnalysisTasklet(resolver, "workload", []trip.Variant{trip.Yellow, green}, nil, nil).
		Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Variants, 2)

	yellow := report.Variants[0]
	assert.Equal(t, "yellow", yellow.Variant)
	require.NotNil(t, yellow.LargestTrip)
	assert.InDelta(t, 4.04, yellow.LargestTrip.CO2Kgs, 1e-9)
	assert.Equal(t, "2021-03-02T18:00:00Z", yellow.LargestTrip.Pickup)
	require.NotNil(t, yellow.LargestTrip.Distance)
	assert.Equal(t, 10.0, *yellow.LargestTrip.Distance)

	require.Len(t, yellow.ByHour.Buckets, 2)
	assert.Equal(t, "08:00", yellow.ByHour.Buckets[0].Label)
	assert.InDelta(t, 0.606, yellow.ByHour.Buckets[0].AvgCO2Kgs, 1e-9)
	assert.Equal(t, 18, yellow.ByHour.Highest.Key)
	assert.Equal(t, 8, yellow.ByHour.Lowest.Key)
	assert.Equal(t, "Tuesday", yellow.ByDayOfWeek.Highest.Label)
	assert.Equal(t, "Monday", yellow.ByDayOfWeek.Lowest.Label)
	assert.Equal(t, "W27", yellow.ByWeek.Lowest.Label)
	assert.Equal(t, "July", yellow.ByMonth.Lowest.Label)

	assert.InDelta(t, 4.848, yellow.YearlyCO2Kgs[2021], 1e-9)
	assert.InDelta(t, 0.404, yellow.YearlyCO2Kgs[2022], 1e-9)
	assert.InDelta(t, 4.848+1.068, report.CombinedYearlyCO2Kgs[2021], 1e-9)
	assert.InDelta(t, 0.404, report.CombinedYearlyCO2Kgs[2022], 1e-9)
}

func TestAnalysisTasklet_EmptyTable(t *testing.T) {
	resolver, conn := newWorkload(t)
	createTransformed(t, conn, "yellow_trips_transformed")

	report, err := tasklet.NewAnalysisTasklet(resolver, "workload", []trip.Variant{trip.Yellow}, nil, nil).
		Analyze(context.Background())
	require.NoError(t, err)
	a := report.Variants[0]
	assert.Nil(t, a.LargestTrip)
	assert.Empty(t, a.ByHour.Buckets)
	assert.Nil(t, a.ByHour.Highest)
	assert.Empty(t, a.YearlyCO2Kgs)
}

func TestAnalysisTasklet_UploadsReport(t *testing.T) {
	ctx := context.Background()
	resolver, conn := newWorkload(t)
	createTransformed(t, conn, "yellow_trips_transformed")
	insert(t, conn, "yellow_trips_transformed", yellowTransformed...)
	exports := newExportStorage(t)

	upload := &tasklet.ReportUpload{Resolver: exports, StorageRef: "exports", Object: "reports/emissions_analysis.json"}
	se := newStepExecution("analysisStep")
	_, err := tasklet.NewAnalysisTasklet(resolver, "workload", []trip.Variant{trip.Yellow}, time.UTC, upload).Execute(ctx, se)
	require.NoError(t, err)
	obj, _ := se.ExecutionContext.GetString("analysis.report_object")
	assert.Equal(t, "reports/emissions_analysis.json", obj)

	sc, err := exports.ResolveStorageConnection(ctx, "exports")
	require.NoError(t, err)
	rc, err := sc.Download(ctx, "", "reports/emissions_analysis.json")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)

	var got tasklet.EmissionsReport
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Variants, 1)
	assert.Equal(t, "yellow_trips_transformed", got.Variants[0].Table)
	assert.InDelta(t, 0.404, got.CombinedYearlyCO2Kgs[2022], 1e-9)
}
