package trip_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/internal/domain/trip"
)

func TestVariant_Validate(t *testing.T) {
	for _, v := range trip.DefaultVariants() {
		require.NoError(t, v.Validate(), v.Name)
	}

	v := trip.Yellow
	v.Target = v.TripsSource
	assert.ErrorContains(t, v.Validate(), "must differ")

	v = trip.Green
	v.PickupField = ""
	assert.ErrorContains(t, v.Validate(), "pickup_field is required")

	v = trip.Green
	v.Target = "green trips"
	assert.Error(t, v.Validate())
}

func TestVariant_WithDefaults(t *testing.T) {
	v := trip.Variant{Name: "green", Target: "green_trips_enriched"}.WithDefaults()
	assert.Equal(t, "lpep_pickup_datetime", v.PickupField)
	assert.Equal(t, "green_taxi", v.VehicleType)
	assert.Equal(t, "green_trips_enriched", v.Target)

	custom := trip.Variant{Name: "fhv", TripsSource: "fhv_trips"}.WithDefaults()
	assert.Equal(t, "trip_distance", custom.DistanceField)
	assert.Error(t, custom.Validate())
}
