package local

import (
	"go.uber.org/fx"

	storage "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

// NewLocalProvider creates the provider for "local" connections.
func NewLocalProvider(cfg *config.Config) storage.StorageProvider {
	return storage.NewCachingProvider(ProviderType, cfg, NewLocalAdapter)
}

// Module registers the local provider in the storage provider group.
var Module = fx.Provide(fx.Annotate(
	NewLocalProvider,
	fx.ResultTags(`group:"storage_providers"`),
))
