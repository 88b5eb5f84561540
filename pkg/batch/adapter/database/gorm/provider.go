package gorm

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// DialectorFactory builds a gorm.Dialector from a connection config.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers factory for dbType. Dialect packages call it from init.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory returns the factory registered for dbType.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	f, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return f, nil
}

// BaseProvider caches one connection per configuration name for a single database type.
type BaseProvider struct {
	cfg         *config.Config
	dbType      string
	connections map[string]database.DBConnection
	mu          sync.RWMutex
}

// NewBaseProvider creates a provider for dbType reading connection settings from cfg.
func NewBaseProvider(cfg *config.Config, dbType string) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		dbType:      dbType,
		connections: make(map[string]database.DBConnection),
	}
}

func (p *BaseProvider) Type() string { return p.dbType }

// GetConnection returns the cached connection for name, opening it on first use.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}
	return p.createAndStoreConnection(name)
}

// ForceReconnect closes the cached connection for name, if any, and opens a new one.
func (p *BaseProvider) ForceReconnect(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.connections[name]; ok {
		if err := old.Close(); err != nil {
			logger.Warnf("Failed to close connection '%s' before reconnect: %v", name, err)
		}
		delete(p.connections, name)
	}
	conn, err := p.createAndStoreConnection(name)
	if err != nil {
		return nil, err
	}
	logger.Infof("Re-established DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

func (p *BaseProvider) createAndStoreConnection(name string) (database.DBConnection, error) {
	raw, ok := p.cfg.Surfin.Adapter.Database[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found under surfin.adapter.database", name)
	}
	dbCfg, err := dbconfig.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("connection '%s': %w", name, err)
	}
	if dbCfg.Type != p.dbType {
		return nil, fmt.Errorf("provider type mismatch: expected '%s', got '%s' for connection '%s'", p.dbType, dbCfg.Type, name)
	}

	gormDB, err := Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connection '%s': %w", name, err)
	}
	conn, err := NewGormDBAdapter(gormDB, dbCfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Established DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

// Open creates a gorm handle for dbCfg using the registered dialector and applies pool settings.
func Open(dbCfg dbconfig.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(dbCfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("create dialector for %s: %w", dbCfg.Type, err)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(500 * time.Millisecond),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}
	if dbCfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbCfg.Pool.MaxOpenConns)
	}
	if dbCfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbCfg.Pool.MaxIdleConns)
	}
	if dbCfg.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbCfg.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// CloseAll closes every cached connection and reports all failures.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}
