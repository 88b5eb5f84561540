// Package trip holds the trip enrichment transform and the cleaning rules applied before it.
// One implementation serves every taxi colour; a Variant names the tables and columns.
package trip

import (
	"fmt"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
)

// Variant describes one dataset the transform runs over.
type Variant struct {
	Name           string `mapstructure:"name"`
	TripsSource    string `mapstructure:"trips_source"`
	PickupField    string `mapstructure:"pickup_field"`
	DropoffField   string `mapstructure:"dropoff_field"`
	DistanceField  string `mapstructure:"distance_field"`
	PassengerField string `mapstructure:"passenger_field"`
	VehicleType    string `mapstructure:"vehicle_type"`
	Target         string `mapstructure:"target"`
}

// Yellow is the yellow cab dataset.
var Yellow = Variant{
	Name:           "yellow",
	TripsSource:    "yellow_trips",
	PickupField:    "tpep_pickup_datetime",
	DropoffField:   "tpep_dropoff_datetime",
	DistanceField:  "trip_distance",
	PassengerField: "passenger_count",
	VehicleType:    "yellow_taxi",
	Target:         "yellow_trips_transformed",
}

// Green is the green cab dataset.
var Green = Variant{
	Name:           "green",
	TripsSource:    "green_trips",
	PickupField:    "lpep_pickup_datetime",
	DropoffField:   "lpep_dropoff_datetime",
	DistanceField:  "trip_distance",
	PassengerField: "passenger_count",
	VehicleType:    "green_taxi",
	Target:         "green_trips_transformed",
}

// DefaultVariants returns the yellow and green variants.
func DefaultVariants() []Variant {
	return []Variant{Yellow, Green}
}

// Validate checks that every field is set, that table and column names are plain
// identifiers, and that the target differs from the source.
func (v Variant) Validate() error {
	fields := []struct{ name, value string }{
		{"name", v.Name},
		{"trips_source", v.TripsSource},
		{"pickup_field", v.PickupField},
		{"dropoff_field", v.DropoffField},
		{"distance_field", v.DistanceField},
		{"passenger_field", v.PassengerField},
		{"vehicle_type", v.VehicleType},
		{"target", v.Target},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("variant %q: %s is required", v.Name, f.name)
		}
		if f.name == "vehicle_type" {
			continue
		}
		if _, err := database.QuoteIdentifier("", f.value); err != nil {
			return fmt.Errorf("variant %q: %s: %w", v.Name, f.name, err)
		}
	}
	if v.Target == v.TripsSource {
		return fmt.Errorf("variant %q: target must differ from trips_source %q", v.Name, v.TripsSource)
	}
	return nil
}

// WithDefaults fills empty fields from the built-in variant of the same name.
func (v Variant) WithDefaults() Variant {
	var base Variant
	switch v.Name {
	case Yellow.Name:
		base = Yellow
	case Green.Name:
		base = Green
	default:
		if v.PassengerField == "" {
			v.PassengerField = "passenger_count"
		}
		if v.DistanceField == "" {
			v.DistanceField = "trip_distance"
		}
		return v
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&v.TripsSource, base.TripsSource)
	fill(&v.PickupField, base.PickupField)
	fill(&v.DropoffField, base.DropoffField)
	fill(&v.DistanceField, base.DistanceField)
	fill(&v.PassengerField, base.PassengerField)
	fill(&v.VehicleType, base.VehicleType)
	fill(&v.Target, base.Target)
	return v
}
