// Package reader streams trips tables row by row.
package reader

import (
	"fmt"

	"github.com/tigerroll/taxiemissions/internal/domain/entity"
	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/component/step/reader"
	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
)

// TripTableReader reads every column of a table, keeping the table's column order.
type TripTableReader struct {
	*reader.SqlCursorReader[*entity.TripRow]
}

var _ port.ItemReader[*entity.TripRow] = (*TripTableReader)(nil)
var _ port.ExecutionContextProvider = (*TripTableReader)(nil)

// NewTripTableReader creates a reader of table on connection dbRef.
func NewTripTableReader(name string, resolver database.DBConnectionResolver, dbRef, table string) (*TripTableReader, error) {
	if _, err := database.QuoteIdentifier("", table); err != nil {
		return nil, exception.NewBatchError("reader", fmt.Sprintf("TripTableReader '%s'", name), err, false, false)
	}
	build := func(dbType string) (string, error) {
		return "SELECT * FROM " + database.MustQuoteIdentifier(dbType, table), nil
	}
	return &TripTableReader{reader.NewSqlCursorReaderFor(name, resolver, dbRef, build, nil, mapTripRow)}, nil
}

func mapTripRow(columns []string, values []any) (*entity.TripRow, error) {
	return entity.NewTripRow(columns, values)
}
