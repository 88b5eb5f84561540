package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/config"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// ConnectionFactory opens a connection of one storage type.
type ConnectionFactory func(ctx context.Context, cfg storageconfig.StorageConfig, name string) (StorageConnection, error)

// CachingProvider creates connections on first use and keeps them until CloseAll.
type CachingProvider struct {
	providerType string
	cfg          *config.Config
	factory      ConnectionFactory

	mu          sync.Mutex
	connections map[string]StorageConnection
}

// NewCachingProvider creates a provider for providerType backed by factory.
func NewCachingProvider(providerType string, cfg *config.Config, factory ConnectionFactory) *CachingProvider {
	return &CachingProvider{
		providerType: providerType,
		cfg:          cfg,
		factory:      factory,
		connections:  make(map[string]StorageConnection),
	}
}

func (p *CachingProvider) Type() string { return p.providerType }

func (p *CachingProvider) GetConnection(ctx context.Context, name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	raw, ok := p.cfg.Surfin.Adapter.Storage[name]
	if !ok {
		return nil, fmt.Errorf("storage configuration '%s' not found under surfin.adapter.storage", name)
	}
	storageCfg, err := storageconfig.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("storage connection '%s': %w", name, err)
	}
	if storageCfg.Type != p.providerType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.providerType, storageCfg.Type)
	}

	conn, err := p.factory(ctx, storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage connection '%s': %w", p.providerType, name, err)
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", p.providerType, name)
	return conn, nil
}

func (p *CachingProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s storage connection '%s': %w", p.providerType, name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

var _ StorageProvider = (*CachingProvider)(nil)
