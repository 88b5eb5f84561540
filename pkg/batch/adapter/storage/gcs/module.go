package gcs

import (
	"go.uber.org/fx"

	storage "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

// NewGCSProvider creates the provider for "gcs" connections.
func NewGCSProvider(cfg *config.Config) storage.StorageProvider {
	return storage.NewCachingProvider(ProviderType, cfg, NewGCSAdapter)
}

// Module registers the GCS provider in the storage provider group.
var Module = fx.Provide(fx.Annotate(
	NewGCSProvider,
	fx.ResultTags(`group:"storage_providers"`),
))
