package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/tigerroll/taxiemissions/internal/config"
	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

func load(t *testing.T, doc string) (*appconfig.TripsConfig, error) {
	t.Helper()
	cfg, err := config.LoadConfig("", config.EmbeddedConfig(doc))
	require.NoError(t, err)
	return appconfig.NewTripsConfig(cfg)
}

func TestNewTripsConfig_Defaults(t *testing.T) {
	got, err := appconfig.NewTripsConfig(config.NewConfig())
	require.NoError(t, err)

	assert.Equal(t, "workload", got.WorkloadDBRef)
	assert.Equal(t, []trip.Variant{trip.Yellow, trip.Green}, got.Variants)
	assert.True(t, got.Cleaning.Enabled)
	assert.Equal(t, trip.DefaultCleaningRules(), got.Cleaning.CleaningRules)
	assert.False(t, got.Export.Enabled)
	assert.False(t, got.Verification.FailOnViolation)
}

func TestNewTripsConfig_Overrides(t *testing.T) {
	t.Setenv("TEST_TRIPS_EXPORT", "true")
	got, err := load(t, `
application:
  trips:
    max_parallel: 1
    variants:
      - name: green
      - name: fhv
        trips_source: fhv_trips
        pickup_field: pickup_datetime
        dropoff_field: dropoff_datetime
        vehicle_type: fhv
        target: fhv_trips_transformed
    cleaning:
      enabled: false
      max_year: 2023
    verification:
      fail_on_violation: true
    export:
      enabled: ${TEST_TRIPS_EXPORT}
      storage_ref: exports
      base_dir: out/
      max_rows_per_file: 10
`)
	require.NoError(t, err)

	assert.Equal(t, 1, got.MaxParallel)
	require.Len(t, got.Variants, 2)
	assert.Equal(t, trip.Green, got.Variants[0])
	assert.Equal(t, "passenger_count", got.Variants[1].PassengerField)
	assert.Equal(t, "trip_distance", got.Variants[1].DistanceField)

	assert.False(t, got.Cleaning.Enabled)
	assert.Equal(t, 2023, got.Cleaning.MaxYear)
	assert.Equal(t, 2015, got.Cleaning.MinYear, "unset bounds keep their defaults")
	assert.True(t, got.Verification.FailOnViolation)

	assert.True(t, got.Export.Enabled)
	w := got.Export.ParquetWriterConfig("green")
	assert.Equal(t, "out/green", w.OutputBaseDir)
	assert.Equal(t, "SNAPPY", w.CompressionType)
	assert.Equal(t, 10, w.MaxRowsPerFile)
}

func TestNewTripsConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown key":        "application:\n  trips:\n    clening: {}\n",
		"target is source":   "application:\n  trips:\n    variants:\n      - name: yellow\n        target: yellow_trips\n",
		"duplicate variant":  "application:\n  trips:\n    variants:\n      - name: yellow\n      - name: yellow\n",
		"shared target":      "application:\n  trips:\n    variants:\n      - name: yellow\n      - name: green\n        target: yellow_trips_transformed\n",
		"incomplete variant": "application:\n  trips:\n    variants:\n      - name: fhv\n",
		"inverted years":     "application:\n  trips:\n    cleaning:\n      min_year: 2024\n      max_year: 2015\n",
		"export at root":     "application:\n  trips:\n    export:\n      enabled: true\n      base_dir: /\n",
		"empty variants":     "application:\n  trips:\n    variants: []\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, doc)
			assert.Error(t, err)
		})
	}
}
