// Package reader provides item readers over database cursors.
package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// RowMapper converts one scanned row into an item. columns is shared between calls and must not be modified.
type RowMapper[T any] func(columns []string, values []any) (T, error)

// SqlCursorReader streams the result of a query one row at a time. The query runs on the pool of
// a resolved connection, outside any chunk transaction, and uses the driver's own placeholders.
type SqlCursorReader[T any] struct {
	name     string
	resolver database.DBConnectionResolver
	dbRef    string
	query    string
	args     []any
	mapper   RowMapper[T]
	build    func(dbType string) (string, error)

	rows      *sql.Rows
	columns   []string
	readCount int
}

// NewSqlCursorReader creates a reader for query on connection dbRef.
func NewSqlCursorReader[T any](name string, resolver database.DBConnectionResolver, dbRef, query string, args []any, mapper RowMapper[T]) *SqlCursorReader[T] {
	return &SqlCursorReader[T]{
		name:     name,
		resolver: resolver,
		dbRef:    dbRef,
		query:    query,
		args:     args,
		mapper:   mapper,
	}
}

// NewSqlCursorReaderFor creates a reader whose query depends on the database type of dbRef,
// e.g. because it quotes identifiers.
func NewSqlCursorReaderFor[T any](name string, resolver database.DBConnectionResolver, dbRef string, build func(dbType string) (string, error), args []any, mapper RowMapper[T]) *SqlCursorReader[T] {
	r := NewSqlCursorReader(name, resolver, dbRef, "", args, mapper)
	r.build = build
	return r
}

var _ port.ItemReader[any] = (*SqlCursorReader[any])(nil)
var _ port.ExecutionContextProvider = (*SqlCursorReader[any])(nil)

// Open executes the query.
func (r *SqlCursorReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := r.resolver.ResolveDBConnection(ctx, r.dbRef)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': failed to resolve connection '%s'", r.name, r.dbRef), err, false, false)
	}
	db, err := conn.GetSQLDB()
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': no *sql.DB for '%s'", r.name, r.dbRef), err, false, false)
	}

	if r.build != nil {
		query, err := r.build(conn.Type())
		if err != nil {
			return exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': failed to build query", r.name), err, false, false)
		}
		r.query = query
	}

	logger.Infof("SqlCursorReader '%s': Starting read. Query: %s", r.name, r.query)
	rows, err := db.QueryContext(ctx, r.query, r.args...)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("Failed to execute query for SqlCursorReader '%s'", r.name), err, false, false)
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return exception.NewBatchError("reader", fmt.Sprintf("Failed to read columns for SqlCursorReader '%s'", r.name), err, false, false)
	}
	r.rows = rows
	r.columns = columns
	r.readCount = 0
	return nil
}

// Read returns the next mapped row, or port.ErrNoMoreItems after the last one.
func (r *SqlCursorReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.rows == nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("SqlCursorReader '%s': Reader not opened or already closed.", r.name), errors.New("reader not initialized"), false, false)
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return item, exception.NewBatchError("reader", fmt.Sprintf("Error during row iteration for SqlCursorReader '%s'", r.name), err, false, exception.IsTemporary(err))
		}
		return item, port.ErrNoMoreItems
	}

	values := make([]any, len(r.columns))
	dest := make([]any, len(r.columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("Failed to scan row %d for SqlCursorReader '%s'", r.readCount+1, r.name), err, false, false)
	}

	mapped, err := r.mapper(r.columns, values)
	if err != nil {
		return item, exception.NewBatchError("reader", fmt.Sprintf("Failed to map row %d for SqlCursorReader '%s'", r.readCount+1, r.name), err, false, false)
	}
	r.readCount++
	return mapped, nil
}

// Columns returns the result columns in query order. Valid after Open.
func (r *SqlCursorReader[T]) Columns() []string { return r.columns }

func (r *SqlCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("Failed to close rows for SqlCursorReader '%s'", r.name), err, false, false)
	}
	logger.Debugf("SqlCursorReader '%s': Closed after %d rows.", r.name, r.readCount)
	return nil
}

func (r *SqlCursorReader[T]) ExecutionContext() model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(r.name+".read_count", r.readCount)
	return ec
}
