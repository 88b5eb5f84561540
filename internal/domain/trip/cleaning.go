package trip

import (
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
)

// Violation is a set of data quality rules a row breaks.
type Violation uint16

const (
	ViolationNoPassengers Violation = 1 << iota
	ViolationNoDistance
	ViolationDistanceTooLong
	ViolationMissingTimestamp
	ViolationNonPositiveDuration
	ViolationDurationTooLong
	ViolationOutsideYearRange
)

var violationNames = []struct {
	v    Violation
	name string
}{
	{ViolationNoPassengers, "no_passengers"},
	{ViolationNoDistance, "no_distance"},
	{ViolationDistanceTooLong, "distance_too_long"},
	{ViolationMissingTimestamp, "missing_timestamp"},
	{ViolationNonPositiveDuration, "non_positive_duration"},
	{ViolationDurationTooLong, "duration_too_long"},
	{ViolationOutsideYearRange, "outside_year_range"},
}

// ViolationNames lists the name of every single rule, in a fixed order.
func ViolationNames() []string {
	out := make([]string, len(violationNames))
	for i, vn := range violationNames {
		out[i] = vn.name
	}
	return out
}

// Has reports whether v includes every rule of other.
func (v Violation) Has(other Violation) bool { return v&other == other }

// Count returns how many rules v contains.
func (v Violation) Count() int { return bits.OnesCount16(uint16(v)) }

// Each calls fn with the name of every rule in v.
func (v Violation) Each(fn func(name string)) {
	for _, vn := range violationNames {
		if v.Has(vn.v) {
			fn(vn.name)
		}
	}
}

func (v Violation) String() string {
	if v == 0 {
		return "none"
	}
	var names []string
	v.Each(func(n string) { names = append(names, n) })
	return strings.Join(names, "|")
}

// CleaningRules bound the trips kept by the cleaning step.
type CleaningRules struct {
	MinYear            int     `mapstructure:"min_year"`
	MaxYear            int     `mapstructure:"max_year"`
	MaxDistance        float64 `mapstructure:"max_distance"`
	MaxDurationSeconds float64 `mapstructure:"max_duration_seconds"`
}

// DefaultCleaningRules keeps trips from 2015 to 2024 of at most 100 miles and 24 hours.
func DefaultCleaningRules() CleaningRules {
	return CleaningRules{MinYear: 2015, MaxYear: 2024, MaxDistance: 100, MaxDurationSeconds: 86400}
}

// Validate rejects inverted or non-positive bounds.
func (r CleaningRules) Validate() error {
	if r.MinYear > r.MaxYear {
		return fmt.Errorf("cleaning: min_year %d is after max_year %d", r.MinYear, r.MaxYear)
	}
	if r.MaxDistance <= 0 || r.MaxDurationSeconds <= 0 {
		return fmt.Errorf("cleaning: max_distance and max_duration_seconds must be positive")
	}
	return nil
}

// CheckCleaningSchema verifies that columns carry everything the rules read.
func CheckCleaningSchema(columns []string, v Variant) error {
	for _, need := range []string{v.PassengerField, v.PickupField, v.DropoffField, v.DistanceField} {
		found := false
		for _, c := range columns {
			if c == need {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q not found in %s", ErrMissingColumn, need, v.TripsSource)
		}
	}
	return nil
}

// Inspect returns every rule row breaks. NULL passengers and NULL distance count as none.
func (r CleaningRules) Inspect(row *entity.TripRow, v Variant, loc *time.Location) (Violation, error) {
	if err := CheckCleaningSchema(row.Columns, v); err != nil {
		return 0, err
	}
	rawPassengers, _ := row.Get(v.PassengerField)
	rawDistance, _ := row.Get(v.DistanceField)
	rawPickup, _ := row.Get(v.PickupField)
	rawDropoff, _ := row.Get(v.DropoffField)

	var out Violation

	passengers, ok, err := AsFloat(rawPassengers)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", v.PassengerField, err)
	}
	if !ok || passengers <= 0 {
		out |= ViolationNoPassengers
	}

	distance, ok, err := AsFloat(rawDistance)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", v.DistanceField, err)
	}
	switch {
	case !ok || distance <= 0:
		out |= ViolationNoDistance
	case distance > r.MaxDistance:
		out |= ViolationDistanceTooLong
	}

	pickup, hasPickup, err := AsTime(rawPickup, loc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", v.PickupField, err)
	}
	dropoff, hasDropoff, err := AsTime(rawDropoff, loc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", v.DropoffField, err)
	}
	if !hasPickup || !hasDropoff {
		out |= ViolationMissingTimestamp
	} else {
		seconds := dropoff.Sub(pickup).Seconds()
		switch {
		case seconds <= 0:
			out |= ViolationNonPositiveDuration
		case seconds > r.MaxDurationSeconds:
			out |= ViolationDurationTooLong
		}
	}
	if hasPickup && (pickup.Year() < r.MinYear || pickup.Year() > r.MaxYear) {
		out |= ViolationOutsideYearRange
	}
	return out, nil
}
