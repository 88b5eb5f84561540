// Package tasklet holds the single-operation steps of the taxi emissions job: seeding,
// summaries, verifications and the emissions analysis.
package tasklet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
)

// ExitStatusCompletedWithViolations ends a verification step that found data quality problems
// without failing the job.
const ExitStatusCompletedWithViolations model.ExitStatus = "COMPLETED_WITH_VIOLATIONS"

// sqlQuery runs aggregate queries whose result types depend on the driver. Values are
// scanned into `any`, the same way the cursor reader does, so callers coerce them.
type sqlQuery struct {
	conn database.DBConnection
	db   *sql.DB
}

func openQuery(ctx context.Context, resolver database.DBConnectionResolver, dbRef, module string) (*sqlQuery, error) {
	conn, err := resolver.ResolveDBConnection(ctx, dbRef)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to resolve connection '%s'", dbRef), err, false, false)
	}
	db, err := conn.GetSQLDB()
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("no *sql.DB for '%s'", dbRef), err, false, false)
	}
	return &sqlQuery{conn: conn, db: db}, nil
}

// q quotes an identifier validated at configuration time.
func (s *sqlQuery) q(name string) string {
	return database.MustQuoteIdentifier(s.conn.Type(), name)
}

// row returns the values of the single row of query.
func (s *sqlQuery) row(ctx context.Context, query string, width int) ([]any, error) {
	values := make([]any, width)
	dest := make([]any, width)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := s.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return nil, err
	}
	return values, nil
}

// rows calls fn with the values of every row of query.
func (s *sqlQuery) rows(ctx context.Context, query string, fn func(values []any) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}

// count returns COUNT(*) of table.
func (s *sqlQuery) count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.q(table)).Scan(&n)
	return n, err
}
