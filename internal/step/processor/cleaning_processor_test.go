package processor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/internal/step/processor"
)

func TestCleaningProcessor(t *testing.T) {
	p := processor.NewCleaningProcessor("yellowCleaner", trip.Yellow, trip.DefaultCleaningRules(), nil)
	ctx, _ := stepContext("yellowCleanStep")

	good := yellowRow(t, "2021-03-01 08:00:00", "2021-03-01 08:30:00", int64(1), 2.0)
	rows := []*entity.TripRow{
		good,
		yellowRow(t, "2021-03-01 08:00:00", "2021-03-01 08:30:00", int64(1), 2.0),
		yellowRow(t, "2021-03-01 08:00:00", "2021-03-01 08:30:00", int64(0), 2.0),
		yellowRow(t, "2021-03-01 08:00:00", "2021-03-01 07:30:00", int64(2), 150.0),
		yellowRow(t, nil, "2021-03-01 07:30:00", int64(2), 1.0),
		yellowRow(t, "2009-01-01 10:00:00", "2009-01-01 10:05:00", int64(2), 1.0),
		yellowRow(t, "2021-03-02 09:00:00", "2021-03-02 09:10:00", int64(3), 1.5),
	}
	var kept []*entity.TripRow
	for _, r := range rows {
		out, err := p.Process(ctx, r)
		require.NoError(t, err)
		if out != nil {
			kept = append(kept, out)
		}
	}
	require.Len(t, kept, 2)
	assert.Same(t, good, kept[0])

	ec := p.ExecutionContext()
	get := func(key string) int {
		n, ok := ec.GetInt("yellowCleaner." + key)
		require.True(t, ok, key)
		return n
	}
	assert.Equal(t, 2, get("kept"))
	assert.Equal(t, 1, get("duplicates"))
	assert.Equal(t, 1, get("dropped.no_passengers"))
	assert.Equal(t, 1, get("dropped.distance_too_long"))
	assert.Equal(t, 1, get("dropped.non_positive_duration"))
	assert.Equal(t, 1, get("dropped.missing_timestamp"))
	assert.Equal(t, 1, get("dropped.outside_year_range"))
	assert.Equal(t, 0, get("dropped.duration_too_long"))
	assert.Equal(t, 0, get("dropped.no_distance"))
}

func TestCleaningProcessor_DedupStartsOverPerStepExecution(t *testing.T) {
	p := processor.NewCleaningProcessor("c", trip.Yellow, trip.DefaultCleaningRules(), nil)
	row := yellowRow(t, "2021-03-01 08:00:00", "2021-03-01 08:30:00", int64(1), 2.0)

	first, _ := stepContext("s")
	out, err := p.Process(first, row)
	require.NoError(t, err)
	require.NotNil(t, out)

	second, _ := stepContext("s")
	out, err = p.Process(second, row)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestCleaningProcessor_BadValue(t *testing.T) {
	p := processor.NewCleaningProcessor("c", trip.Yellow, trip.DefaultCleaningRules(), nil)
	ctx, _ := stepContext("s")
	_, err := p.Process(ctx, yellowRow(t, "yesterday", "2021-03-01 08:30:00", int64(1), 2.0))
	assert.ErrorIs(t, err, trip.ErrInvalidValue)
}
