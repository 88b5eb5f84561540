// Package tx defines the transaction contracts the step engine uses to scope chunk writes.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor is the set of write operations available inside a transaction.
type TxExecutor interface {
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
	// Exec runs a raw statement with '?' placeholders.
	Exec(ctx context.Context, statement string, args ...interface{}) (rowsAffected int64, err error)
}

// Tx is an open transaction.
type Tx interface {
	TxExecutor
}

// TransactionManager begins and ends transactions on one connection.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

// TransactionManagerFactory creates a TransactionManager bound to a named connection.
type TransactionManagerFactory interface {
	NewTransactionManager(dbName string) TransactionManager
}

type ctxKey struct{}

// WithTx returns a context carrying t so that repositories can join the caller's transaction.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the transaction stored by WithTx, if any.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(ctxKey{}).(Tx)
	return t, ok
}
