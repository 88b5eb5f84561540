// Package gcs stores objects in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storage "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled by this package.
const ProviderType = "gcs"

type gcsAdapter struct {
	cfg    storageconfig.StorageConfig
	name   string
	client *gcstorage.Client
}

var _ storage.StorageConnection = (*gcsAdapter)(nil)

// NewGCSAdapter creates a client. Credentials come from CredentialsFile when set, otherwise
// from Application Default Credentials. Endpoint points the client at an emulator.
func NewGCSAdapter(ctx context.Context, cfg storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': create client: %w", name, err)
	}
	logger.Debugf("GCS storage adapter '%s' created (default bucket '%s').", name, cfg.BucketName)
	return &gcsAdapter{cfg: cfg, name: name, client: client}, nil
}

func (a *gcsAdapter) Close() error                        { return a.client.Close() }
func (a *gcsAdapter) Type() string                        { return ProviderType }
func (a *gcsAdapter) Name() string                        { return a.name }
func (a *gcsAdapter) Config() storageconfig.StorageConfig { return a.cfg }

func (a *gcsAdapter) bucket(name string) (*gcstorage.BucketHandle, error) {
	if name == "" {
		name = a.cfg.BucketName
	}
	if name == "" {
		return nil, fmt.Errorf("gcs storage adapter '%s': no bucket given and bucket_name is not configured", a.name)
	}
	return a.client.Bucket(name), nil
}

func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	w := b.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("upload gs object '%s': %w", objectName, err)
	}
	// The object is only committed when Close succeeds.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs object '%s': %w", objectName, err)
	}
	return nil
}

func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	b, err := a.bucket(bucket)
	if err != nil {
		return nil, err
	}
	r, err := b.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs object '%s': %w", objectName, err)
	}
	return r, nil
}

func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	it := b.Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list gs objects with prefix '%s': %w", prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	b, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	if err := b.Object(objectName).Delete(ctx); err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("delete gs object '%s': %w", objectName, err)
	}
	return nil
}
