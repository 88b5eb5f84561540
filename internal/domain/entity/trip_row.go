// Package entity holds the rows and records the taxi emissions job reads and writes.
package entity

import "fmt"

// TripRow is one row of a trips table: column names and values in source order.
// Values are whatever the database driver returned; nil is SQL NULL.
type TripRow struct {
	Columns []string
	Values  []any
}

// NewTripRow pairs columns and values, which must have the same length.
func NewTripRow(columns []string, values []any) (*TripRow, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("trip row has %d columns but %d values", len(columns), len(values))
	}
	return &TripRow{Columns: columns, Values: values}, nil
}

// Index returns the position of column name, or -1.
func (r *TripRow) Index(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Get returns the value of column name and whether the column exists.
func (r *TripRow) Get(name string) (any, bool) {
	i := r.Index(name)
	if i < 0 {
		return nil, false
	}
	return r.Values[i], true
}

// Clone copies the row so that appending to the clone leaves r untouched.
func (r *TripRow) Clone() *TripRow {
	return r.CloneWithCapacity(0)
}

// CloneWithCapacity copies the row, reserving room for extra appended columns.
func (r *TripRow) CloneWithCapacity(extra int) *TripRow {
	cols := make([]string, len(r.Columns), len(r.Columns)+extra)
	copy(cols, r.Columns)
	vals := make([]any, len(r.Values), len(r.Values)+extra)
	copy(vals, r.Values)
	return &TripRow{Columns: cols, Values: vals}
}

// Append adds a column at the end of the row.
func (r *TripRow) Append(name string, value any) {
	r.Columns = append(r.Columns, name)
	r.Values = append(r.Values, value)
}

func (r *TripRow) ColumnNames() []string { return r.Columns }
func (r *TripRow) ColumnValues() []any   { return r.Values }
