package tasklet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/internal/step/tasklet"
)

func TestSourceSummaryTasklet(t *testing.T) {
	ctx := context.Background()
	resolver, conn := newWorkload(t)
	exec(t, conn, createYellowTrips)
	insert(t, conn, "yellow_trips", yellowSource...)

	st := tasklet.NewSourceSummaryTasklet(resolver, "workload", trip.Yellow, nil)
	sum, err := st.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Rows)
	require.NotNil(t, sum.FirstPickup)
	assert.True(t, sum.FirstPickup.Equal(time.Date(2021, 3, 1, 8, 0, 0, 0, time.UTC)))
	require.NotNil(t, sum.LastPickup)
	assert.True(t, sum.LastPickup.Equal(time.Date(2022, 7, 4, 8, 30, 0, 0, time.UTC)))
	require.NotNil(t, sum.TotalDistance)
	assert.InDelta(t, 13.0, *sum.TotalDistance, 1e-9)
	require.NotNil(t, sum.AvgDistance)
	assert.InDelta(t, 13.0/3, *sum.AvgDistance, 1e-9)

	se := newStepExecution("yellowSummaryStep")
	_, err = st.Execute(ctx, se)
	require.NoError(t, err)
	first, _ := se.ExecutionContext.GetString("summary.first_pickup")
	assert.Equal(t, "2021-03-01T08:00:00Z", first)
	rows, _ := se.ExecutionContext.GetInt64("summary.rows")
	assert.Equal(t, int64(3), rows)
}

func TestSourceSummaryTasklet_EmptyTable(t *testing.T) {
	resolver, conn := newWorkload(t)
	exec(t, conn, createYellowTrips)

	sum, err := tasklet.NewSourceSummaryTasklet(resolver, "workload", trip.Yellow, nil).Summarize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Rows)
	assert.Nil(t, sum.FirstPickup)
	assert.Nil(t, sum.AvgDistance)

	se := newStepExecution("s")
	_, err = tasklet.NewSourceSummaryTasklet(resolver, "workload", trip.Green, nil).Execute(context.Background(), se)
	assert.Error(t, err, "green_trips does not exist")
}
