package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	storageconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/taxiemissions/pkg/batch/core/adapter"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

// ConnectionResolver picks the provider matching a storage connection's configured type.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

// ResolverParams are the fx inputs of NewConnectionResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *config.Config
}

func NewConnectionResolver(p ResolverParams) *ConnectionResolver {
	m := make(map[string]StorageProvider, len(p.Providers))
	for _, prov := range p.Providers {
		m[prov.Type()] = prov
	}
	return &ConnectionResolver{providers: m, cfg: p.Cfg}
}

func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	raw, ok := r.cfg.Surfin.Adapter.Storage[name]
	if !ok {
		return nil, fmt.Errorf("storage connection '%s' not found in configuration", name)
	}
	storageCfg, err := storageconfig.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("storage connection '%s': %w", name, err)
	}
	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", storageCfg.Type, name)
	}
	return provider.GetConnection(ctx, name)
}

func (r *ConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var result *multierror.Error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

var _ StorageConnectionResolver = (*ConnectionResolver)(nil)
