// Package emissions resolves the CO2 factor of a vehicle type from vehicle_emissions.
package emissions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
)

var (
	// ErrFactorNotFound means no vehicle_emissions row matches the vehicle type.
	ErrFactorNotFound = errors.New("emissions factor not found")
	// ErrAmbiguousFactor means more than one vehicle_emissions row matches the vehicle type.
	ErrAmbiguousFactor = errors.New("emissions factor is ambiguous")
	// ErrInvalidFactor means the factor is negative, NaN or infinite.
	ErrInvalidFactor = errors.New("emissions factor is invalid")
)

func init() {
	exception.RegisterErrorType("EmissionsFactorNotFound", ErrFactorNotFound)
	exception.RegisterErrorType("EmissionsFactorAmbiguous", ErrAmbiguousFactor)
}

// Lookup maps a vehicle type to its grams of CO2 per mile.
// Types that appear more than once are remembered and reported as ambiguous.
type Lookup struct {
	factors   map[string]float64
	ambiguous map[string]int
}

// NewLookup indexes factors by vehicle type.
//
// Parameters:
//
//	factors: The rows of vehicle_emissions.
//
// Returns:
//
//	*Lookup: The index. Duplicated types are reported when they are looked up.
//	error: An error if a factor is negative or not finite.
func NewLookup(factors []entity.EmissionsFactor) (*Lookup, error) {
	l := &Lookup{
		factors:   make(map[string]float64, len(factors)),
		ambiguous: make(map[string]int),
	}
	counts := make(map[string]int, len(factors))
	for _, f := range factors {
		if f.CO2GramsPerMile < 0 || math.IsNaN(f.CO2GramsPerMile) || math.IsInf(f.CO2GramsPerMile, 0) {
			return nil, fmt.Errorf("%w: %q has %v g/mi", ErrInvalidFactor, f.VehicleType, f.CO2GramsPerMile)
		}
		counts[f.VehicleType]++
		l.factors[f.VehicleType] = f.CO2GramsPerMile
	}
	for vt, n := range counts {
		if n > 1 {
			l.ambiguous[vt] = n
			delete(l.factors, vt)
		}
	}
	return l, nil
}

// Factor returns the grams of CO2 per mile of vehicleType.
func (l *Lookup) Factor(vehicleType string) (float64, error) {
	if n, ok := l.ambiguous[vehicleType]; ok {
		return 0, fmt.Errorf("%w: %d rows for vehicle type %q", ErrAmbiguousFactor, n, vehicleType)
	}
	g, ok := l.factors[vehicleType]
	if !ok {
		return 0, fmt.Errorf("%w: vehicle type %q", ErrFactorNotFound, vehicleType)
	}
	return g, nil
}

// VehicleTypes returns the unambiguous vehicle types, sorted.
func (l *Lookup) VehicleTypes() []string {
	out := make([]string, 0, len(l.factors))
	for vt := range l.factors {
		out = append(out, vt)
	}
	sort.Strings(out)
	return out
}

// LoadLookup reads the whole vehicle_emissions table. The table is small.
func LoadLookup(ctx context.Context, conn database.DBExecutor) (*Lookup, error) {
	var factors []entity.EmissionsFactor
	if err := conn.ExecuteQuery(ctx, &factors, nil); err != nil {
		return nil, exception.NewBatchError("emissions", "failed to read vehicle_emissions", err, false, exception.IsTemporary(err))
	}
	l, err := NewLookup(factors)
	if err != nil {
		return nil, exception.NewBatchError("emissions", "invalid vehicle_emissions contents", err, false, false)
	}
	return l, nil
}
