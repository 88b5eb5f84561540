package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
)

// GormTxAdapter is a tx.Tx over a gorm transaction handle.
type GormTxAdapter struct {
	db *gorm.DB
}

var _ tx.Tx = (*GormTxAdapter)(nil)

func (t *GormTxAdapter) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return executeUpdate(t.db.WithContext(ctx), model, operation, tableName, query)
}

func (t *GormTxAdapter) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return executeUpsert(t.db.WithContext(ctx), model, tableName, conflictColumns, updateColumns)
}

func (t *GormTxAdapter) Exec(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	res := t.db.WithContext(ctx).Exec(statement, args...)
	return res.RowsAffected, res.Error
}

// GormTransactionManager resolves its connection on every Begin so that a
// reconnect performed by the resolver is picked up by the next chunk.
type GormTransactionManager struct {
	resolver database.DBConnectionResolver
	dbName   string
}

func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.resolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("resolve connection '%s' for transaction: %w", m.dbName, err)
	}
	ga, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("connection '%s' is %T, not a gorm connection", m.dbName, conn)
	}
	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	gtx := ga.GetGormDB().WithContext(ctx).Begin(txOpts)
	if gtx.Error != nil {
		return nil, fmt.Errorf("begin transaction on '%s': %w", m.dbName, gtx.Error)
	}
	return &GormTxAdapter{db: gtx}, nil
}

func (m *GormTransactionManager) Commit(t tx.Tx) error {
	g, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type %T", t)
	}
	return g.db.Commit().Error
}

func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	g, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type %T", t)
	}
	return g.db.Rollback().Error
}

// GormTransactionManagerFactory creates GormTransactionManagers.
type GormTransactionManagerFactory struct {
	resolver database.DBConnectionResolver
}

// NewGormTransactionManagerFactory returns a factory using resolver.
func NewGormTransactionManagerFactory(resolver database.DBConnectionResolver) tx.TransactionManagerFactory {
	return &GormTransactionManagerFactory{resolver: resolver}
}

func (f *GormTransactionManagerFactory) NewTransactionManager(dbName string) tx.TransactionManager {
	return &GormTransactionManager{resolver: f.resolver, dbName: dbName}
}
