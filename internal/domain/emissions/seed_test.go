package emissions_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/internal/domain/emissions"
	"github.com/tigerroll/taxiemissions/internal/domain/entity"
)

func TestParseSeed(t *testing.T) {
	doc := "# grams of CO2 per mile\nco2_grams_per_mile, vehicle_type, source\n404, yellow_taxi, epa\n 356.5 ,green_taxi,epa\n"
	got, err := emissions.ParseSeed(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []entity.EmissionsFactor{
		{VehicleType: "yellow_taxi", CO2GramsPerMile: 404},
		{VehicleType: "green_taxi", CO2GramsPerMile: 356.5},
	}, got)
}

func TestParseSeed_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "vehicle_type\nyellow_taxi\n",
		"bad number":     "vehicle_type,co2_grams_per_mile\nyellow_taxi,lots\n",
		"empty type":     "vehicle_type,co2_grams_per_mile\n,404\n",
		"negative":       "vehicle_type,co2_grams_per_mile\nyellow_taxi,-1\n",
		"ragged":         "vehicle_type,co2_grams_per_mile\nyellow_taxi\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := emissions.ParseSeed(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}

	_, err := emissions.ParseSeed(strings.NewReader("vehicle_type,co2_grams_per_mile\nyellow_taxi,404\nyellow_taxi,405\n"))
	assert.ErrorIs(t, err, emissions.ErrAmbiguousFactor)
}
