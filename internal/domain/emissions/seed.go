package emissions

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
)

const (
	seedVehicleTypeColumn = "vehicle_type"
	seedFactorColumn      = "co2_grams_per_mile"
)

// ParseSeed reads vehicle_emissions rows from CSV. The header must name vehicle_type and
// co2_grams_per_mile, in any order; other columns are ignored. A vehicle type listed twice
// is rejected, as is any factor NewLookup would reject.
func ParseSeed(r io.Reader) ([]entity.EmissionsFactor, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("emissions seed is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read emissions seed header: %w", err)
	}
	typeIdx, factorIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case seedVehicleTypeColumn:
			typeIdx = i
		case seedFactorColumn:
			factorIdx = i
		}
	}
	if typeIdx < 0 || factorIdx < 0 {
		return nil, fmt.Errorf("emissions seed header %v must contain %q and %q", header, seedVehicleTypeColumn, seedFactorColumn)
	}

	var out []entity.EmissionsFactor
	seen := make(map[string]int)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("emissions seed: %w", err)
		}
		line, _ := cr.FieldPos(typeIdx)
		vt := strings.TrimSpace(rec[typeIdx])
		if vt == "" {
			return nil, fmt.Errorf("emissions seed line %d: empty vehicle_type", line)
		}
		if first, dup := seen[vt]; dup {
			return nil, fmt.Errorf("%w: %q on lines %d and %d of the emissions seed", ErrAmbiguousFactor, vt, first, line)
		}
		seen[vt] = line
		g, err := strconv.ParseFloat(strings.TrimSpace(rec[factorIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("emissions seed line %d: %w", line, err)
		}
		out = append(out, entity.EmissionsFactor{VehicleType: vt, CO2GramsPerMile: g})
	}
	if _, err := NewLookup(out); err != nil {
		return nil, err
	}
	return out, nil
}
