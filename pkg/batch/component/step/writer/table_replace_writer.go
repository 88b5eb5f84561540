package writer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// StagingSuffix is appended to the target name to form the staging table.
const StagingSuffix = "__staging"

// maxBindParams bounds the placeholders of one INSERT statement (SQLite's historical limit is 999).
const maxBindParams = 900

// Row is an item with named, ordered column values.
type Row interface {
	ColumnNames() []string
	ColumnValues() []any
}

// ColumnKind is the logical type of a column added to the staging table.
type ColumnKind int

const (
	KindFloat ColumnKind = iota
	KindInt
)

// Column describes a column appended after the schema-source columns.
type Column struct {
	Name string
	Kind ColumnKind
}

// TableReplaceConfig configures a TableReplaceWriter.
type TableReplaceConfig struct {
	DBRef string
	// Target is the table replaced when the step succeeds.
	Target string
	// SchemaSource is the table whose columns the target starts with. It may equal Target.
	SchemaSource string
	// ExtraColumns are appended after the SchemaSource columns.
	ExtraColumns []Column
}

// TableReplaceWriter materialises its items into a fresh table and swaps it in for Target
// when the step ends successfully. Readers of Target see either the previous
// contents or the complete new contents.
//
// Open drops and recreates <Target>__staging. Write inserts into staging within the chunk
// transaction. Close replaces Target with staging. Abort drops staging and leaves Target untouched.
type TableReplaceWriter[T Row] struct {
	name      string
	cfg       TableReplaceConfig
	resolver  database.DBConnectionResolver
	txManager tx.TransactionManager

	conn         database.DBConnection
	dbType       string
	staging      string
	columns      []string
	insertPrefix string
	written      int
}

// NewTableReplaceWriter validates the table and column names and creates the writer.
//
// Parameters:
//
//	name: The unique name of the writer, used in logs and ExecutionContext keys.
//	cfg: The connection, target, schema source and extra columns.
//	resolver: Resolver for cfg.DBRef.
//	txManager: Transaction manager used for the final swap.
//
// Returns:
//
//	*TableReplaceWriter[T]: The writer.
//	error: An error if a table or column name is not a plain identifier.
func NewTableReplaceWriter[T Row](name string, cfg TableReplaceConfig, resolver database.DBConnectionResolver, txManager tx.TransactionManager) (*TableReplaceWriter[T], error) {
	names := []string{cfg.Target, cfg.Target + StagingSuffix, cfg.SchemaSource}
	for _, c := range cfg.ExtraColumns {
		names = append(names, c.Name)
	}
	for _, n := range names {
		if _, err := database.QuoteIdentifier("", n); err != nil {
			return nil, exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s'", name), err, false, false)
		}
	}
	return &TableReplaceWriter[T]{
		name:      name,
		cfg:       cfg,
		resolver:  resolver,
		txManager: txManager,
		staging:   cfg.Target + StagingSuffix,
	}, nil
}

var _ port.ItemWriter[Row] = (*TableReplaceWriter[Row])(nil)
var _ port.Abortable = (*TableReplaceWriter[Row])(nil)
var _ port.ExecutionContextProvider = (*TableReplaceWriter[Row])(nil)

func (w *TableReplaceWriter[T]) q(name string) string {
	return database.MustQuoteIdentifier(w.dbType, name)
}

// Open creates an empty staging table with the SchemaSource columns followed by ExtraColumns.
func (w *TableReplaceWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveDBConnection(ctx, w.cfg.DBRef)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s': failed to resolve connection '%s'", w.name, w.cfg.DBRef), err, false, false)
	}
	w.conn = conn
	w.dbType = conn.Type()
	w.columns = nil
	w.insertPrefix = ""
	w.written = 0

	if _, err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+w.q(w.staging)); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s': failed to drop stale staging table", w.name), err, false, false)
	}
	if err := w.createStaging(ctx); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s': failed to create staging table '%s' from '%s'", w.name, w.staging, w.cfg.SchemaSource), err, false, false)
	}
	for _, c := range w.cfg.ExtraColumns {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", w.q(w.staging), w.q(c.Name), columnType(w.dbType, c.Kind))
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s': failed to add column '%s'", w.name, c.Name), err, false, false)
		}
	}
	logger.Infof("TableReplaceWriter '%s': Staging table '%s' ready (target '%s').", w.name, w.staging, w.cfg.Target)
	return nil
}

// createStaging copies the column definitions of SchemaSource. SQLite loses declared types in
// CREATE TABLE AS, and the driver needs them to return timestamps as time.Time, so the
// definition is rebuilt from the declared column types there.
func (w *TableReplaceWriter[T]) createStaging(ctx context.Context) error {
	if w.dbType != "sqlite" {
		stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s WHERE 1=0", w.q(w.staging), w.q(w.cfg.SchemaSource))
		_, err := w.conn.Exec(ctx, stmt)
		return err
	}

	db, err := w.conn.GetSQLDB()
	if err != nil {
		return err
	}
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+w.q(w.cfg.SchemaSource)+" WHERE 1=0")
	if err != nil {
		return err
	}
	defer rows.Close()
	types, err := rows.ColumnTypes()
	if err != nil {
		return err
	}
	defs := make([]string, 0, len(types))
	for _, ct := range types {
		quoted, err := database.QuoteIdentifier(w.dbType, ct.Name())
		if err != nil {
			return err
		}
		defs = append(defs, strings.TrimSpace(quoted+" "+ct.DatabaseTypeName()))
	}
	if err := rows.Close(); err != nil {
		return err
	}
	_, err = w.conn.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", w.q(w.staging), strings.Join(defs, ", ")))
	return err
}

// Write inserts items into the staging table with multi-row INSERT statements.
// Every item must carry the same columns as the first one.
func (w *TableReplaceWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if w.columns == nil {
		if err := w.prepareInsert(items[0].ColumnNames()); err != nil {
			return err
		}
	}

	width := len(w.columns)
	perStmt := maxBindParams / width
	if perStmt < 1 {
		perStmt = 1
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"

	for start := 0; start < len(items); start += perStmt {
		end := start + perStmt
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		var sb strings.Builder
		sb.WriteString(w.insertPrefix)
		args := make([]any, 0, len(batch)*width)
		for i, item := range batch {
			values := item.ColumnValues()
			if len(values) != width {
				return exception.NewBatchErrorf("writer", "TableReplaceWriter '%s': row has %d values, expected %d", w.name, len(values), width)
			}
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(placeholder)
			args = append(args, values...)
		}
		if _, err := t.Exec(ctx, sb.String(), args...); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s': insert into '%s' failed", w.name, w.staging), err, false, exception.IsTemporary(err))
		}
	}
	w.written += len(items)
	return nil
}

func (w *TableReplaceWriter[T]) prepareInsert(columns []string) error {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		q, err := database.QuoteIdentifier(w.dbType, c)
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s'", w.name), err, false, false)
		}
		quoted[i] = q
	}
	w.columns = append([]string(nil), columns...)
	w.insertPrefix = fmt.Sprintf("INSERT INTO %s (%s) VALUES ", w.q(w.staging), strings.Join(quoted, ", "))
	return nil
}

// Close replaces Target with the staging table.
func (w *TableReplaceWriter[T]) Close(ctx context.Context) error {
	if w.conn == nil {
		return nil
	}
	var err error
	if w.dbType == "mysql" {
		err = w.swapMySQL(ctx)
	} else {
		err = w.swapInTransaction(ctx)
	}
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s': failed to replace '%s'", w.name, w.cfg.Target), err, false, false)
	}
	logger.Infof("TableReplaceWriter '%s': Replaced '%s' with %d rows.", w.name, w.cfg.Target, w.written)
	w.conn = nil
	return nil
}

// swapInTransaction drops Target and renames staging in one transaction.
// PostgreSQL and SQLite both run DDL transactionally.
func (w *TableReplaceWriter[T]) swapInTransaction(ctx context.Context) error {
	t, err := w.txManager.Begin(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	stmts := []string{
		"DROP TABLE IF EXISTS " + w.q(w.cfg.Target),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", w.q(w.staging), w.q(w.cfg.Target)),
	}
	for _, stmt := range stmts {
		if _, err := t.Exec(ctx, stmt); err != nil {
			if rbErr := w.txManager.Rollback(t); rbErr != nil {
				logger.Warnf("TableReplaceWriter '%s': rollback of swap failed: %v", w.name, rbErr)
			}
			return err
		}
	}
	return w.txManager.Commit(t)
}

// swapMySQL uses RENAME TABLE, which swaps several tables atomically. MySQL commits DDL
// implicitly, so the statements run outside a transaction.
func (w *TableReplaceWriter[T]) swapMySQL(ctx context.Context) error {
	old := w.cfg.Target + "__old"
	stmts := []string{
		"DROP TABLE IF EXISTS " + w.q(old),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s LIKE %s", w.q(w.cfg.Target), w.q(w.staging)),
		fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s", w.q(w.cfg.Target), w.q(old), w.q(w.staging), w.q(w.cfg.Target)),
		"DROP TABLE " + w.q(old),
	}
	for _, stmt := range stmts {
		if _, err := w.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Abort drops the staging table. Target keeps its previous contents.
func (w *TableReplaceWriter[T]) Abort(ctx context.Context) error {
	if w.conn == nil {
		return nil
	}
	defer func() { w.conn = nil }()
	if _, err := w.conn.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+w.q(w.staging)); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("TableReplaceWriter '%s': failed to drop staging table '%s'", w.name, w.staging), err, false, false)
	}
	logger.Warnf("TableReplaceWriter '%s': Discarded staging table '%s'; '%s' left unchanged.", w.name, w.staging, w.cfg.Target)
	return nil
}

func (w *TableReplaceWriter[T]) ExecutionContext() model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(w.name+".rows_written", w.written)
	return ec
}

func columnType(dbType string, kind ColumnKind) string {
	switch {
	case kind == KindInt && dbType == "mysql":
		return "INT"
	case kind == KindInt:
		return "INTEGER"
	case dbType == "postgres":
		return "DOUBLE PRECISION"
	case dbType == "mysql":
		return "DOUBLE"
	default:
		return "REAL"
	}
}
