package gorm

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/taxiemissions/pkg/batch/core/adapter"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver picks the provider matching a connection's configured type
// and hands out a connection that has just answered a ping.
type GormDBConnectionResolver struct {
	providers map[string]database.DBProvider
	cfg       *config.Config
}

// ResolverParams are the fx inputs of NewGormDBConnectionResolver.
type ResolverParams struct {
	fx.In
	Providers []database.DBProvider `group:"db_providers"`
	Cfg       *config.Config
}

// NewGormDBConnectionResolver indexes the providers by type.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	m := make(map[string]database.DBProvider, len(p.Providers))
	for _, prov := range p.Providers {
		m[prov.Type()] = prov
	}
	return &GormDBConnectionResolver{providers: m, cfg: p.Cfg}
}

// ResolveDBConnection returns the connection configured under name, reconnecting once if the ping fails.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	raw, ok := r.cfg.Surfin.Adapter.Database[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found under surfin.adapter.database", name)
	}
	dbCfg, err := dbconfig.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("connection '%s': %w", name, err)
	}
	provider, ok := r.providers[dbCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no DBProvider registered for type '%s' (connection '%s')", dbCfg.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, err
	}
	if pingErr := conn.RefreshConnection(ctx); pingErr != nil {
		logger.Warnf("Connection '%s' failed ping (%v). Reconnecting.", name, pingErr)
		conn, err = provider.ForceReconnect(name)
		if err != nil {
			return nil, fmt.Errorf("reconnect '%s': %w", name, err)
		}
	}
	return conn, nil
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *GormDBConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveDBConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *GormDBConnectionResolver) CloseAll() error {
	var firstErr error
	for t, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			logger.Errorf("Closing %s connections: %v", t, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
