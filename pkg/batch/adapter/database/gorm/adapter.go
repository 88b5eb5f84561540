// Package gorm implements the database adapter on top of gorm.
// Dialect packages (sqlite, postgres, mysql) register a dialector factory in init
// and contribute a DBProvider to the "db_providers" fx group.
package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// TableNamer is implemented by models with an explicit table name.
type TableNamer interface {
	TableName() string
}

var tableNamerType = reflect.TypeOf((*TableNamer)(nil)).Elem()

// applyTableName scopes db to the table of model, which may be a struct or a slice of structs.
func applyTableName(db *gorm.DB, model interface{}) *gorm.DB {
	if namer, ok := model.(TableNamer); ok {
		return db.Table(namer.TableName())
	}
	t := reflect.TypeOf(model)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		t = t.Elem()
	}
	if t != nil && reflect.PointerTo(t).Implements(tableNamerType) {
		return db.Table(reflect.New(t).Interface().(TableNamer).TableName())
	}
	return db.Model(model)
}

// GormDBAdapter is the gorm-backed database.DBConnection.
type GormDBAdapter struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   dbconfig.DatabaseConfig
	name  string
}

// NewGormDBAdapter wraps an open gorm handle.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying *sql.DB for '%s': %w", name, err)
	}
	return &GormDBAdapter{db: db, sqlDB: sqlDB, cfg: cfg, name: name}, nil
}

var _ database.DBConnection = (*GormDBAdapter)(nil)

// GetGormDB returns the gorm handle.
func (a *GormDBAdapter) GetGormDB() *gorm.DB { return a.db }

func (a *GormDBAdapter) Close() error {
	logger.Debugf("Closing database connection '%s'.", a.name)
	return a.sqlDB.Close()
}

func (a *GormDBAdapter) Type() string                    { return a.cfg.Type }
func (a *GormDBAdapter) Name() string                    { return a.name }
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig { return a.cfg }
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error)      { return a.sqlDB, nil }

// RefreshConnection pings the pool.
func (a *GormDBAdapter) RefreshConnection(ctx context.Context) error {
	return a.sqlDB.PingContext(ctx)
}

// IsTableNotExistError recognises "missing table" errors of the supported dialects.
func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return isTableNotExist(err)
}

func isTableNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return (strings.Contains(msg, "relation \"") && strings.Contains(msg, "does not exist")) || // postgres
		(strings.Contains(msg, "Error 1146") && strings.Contains(msg, "doesn't exist")) || // mysql
		strings.Contains(msg, "no such table") // sqlite
}

func (a *GormDBAdapter) ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error {
	return a.ExecuteQueryAdvanced(ctx, target, query, "", 0)
}

func (a *GormDBAdapter) ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error {
	db := applyTableName(a.db.WithContext(ctx), target)
	if len(query) > 0 {
		db = db.Where(query)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db.Find(target).Error
}

func (a *GormDBAdapter) Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error) {
	db := applyTableName(a.db.WithContext(ctx), model)
	if len(query) > 0 {
		db = db.Where(query)
	}
	var n int64
	err := db.Count(&n).Error
	return n, err
}

func (a *GormDBAdapter) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return executeUpdate(a.db.WithContext(ctx).Session(&gorm.Session{SkipDefaultTransaction: true}), model, operation, tableName, query)
}

func (a *GormDBAdapter) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return executeUpsert(a.db.WithContext(ctx).Session(&gorm.Session{SkipDefaultTransaction: true}), model, tableName, conflictColumns, updateColumns)
}

func (a *GormDBAdapter) Exec(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	res := a.db.WithContext(ctx).Exec(statement, args...)
	return res.RowsAffected, res.Error
}

func (a *GormDBAdapter) Raw(ctx context.Context, target interface{}, query string, args ...interface{}) error {
	return a.db.WithContext(ctx).Raw(query, args...).Scan(target).Error
}

// executeUpdate is shared by the connection and transaction adapters.
func executeUpdate(db *gorm.DB, model interface{}, operation, tableName string, query map[string]interface{}) (int64, error) {
	if tableName != "" {
		db = db.Table(tableName)
	}
	var res *gorm.DB
	switch strings.ToUpper(operation) {
	case "CREATE":
		res = db.Create(model)
	case "UPDATE":
		if tableName == "" {
			db = db.Model(model)
		}
		if len(query) == 0 {
			return 0, errors.New("UPDATE requires a where condition")
		}
		res = db.Where(query).Select("*").Updates(model)
	case "DELETE":
		if len(query) > 0 {
			db = db.Where(query)
		}
		res = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}
	return res.RowsAffected, res.Error
}

func executeUpsert(db *gorm.DB, model interface{}, tableName string, conflictColumns, updateColumns []string) (int64, error) {
	if tableName != "" {
		db = db.Table(tableName)
	}
	cols := make([]clause.Column, 0, len(conflictColumns))
	for _, c := range conflictColumns {
		cols = append(cols, clause.Column{Name: c})
	}
	onConflict := clause.OnConflict{Columns: cols}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}
	res := db.Clauses(onConflict).Create(model)
	return res.RowsAffected, res.Error
}
