// Package storage defines the object storage adapter contracts. Exports and reports are
// written through them to a local directory or a GCS bucket.
package storage

import (
	"context"
	"io"

	storageconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/taxiemissions/pkg/batch/core/adapter"
)

// StorageExecutor defines object operations. An empty bucket means the configured default bucket.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName, replacing any existing object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes bucket/objectName. A missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named, configured storage handle.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor

	Config() storageconfig.StorageConfig
}

// StorageProvider owns the connections of one storage type.
type StorageProvider interface {
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
	CloseAll() error
	Type() string
}

// StorageConnectionResolver returns a StorageConnection by configuration name.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the fx value group every StorageProvider is registered in.
const StorageProviderGroup = "storage_providers"
