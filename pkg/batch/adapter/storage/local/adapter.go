// Package local stores objects as files below a base directory. A bucket is a subdirectory.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	storage "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled by this package.
const ProviderType = "local"

type localAdapter struct {
	cfg     storageconfig.StorageConfig
	name    string
	baseDir string
}

var _ storage.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter creates the adapter, creating BaseDir if it does not exist.
func NewLocalAdapter(_ context.Context, cfg storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': base_dir must be specified", name)
	}
	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("local storage adapter '%s': resolve base_dir '%s': %w", name, cfg.BaseDir, err)
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage adapter '%s': create base_dir '%s': %w", name, baseDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("local storage adapter '%s': stat base_dir '%s': %w", name, baseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("local storage adapter '%s': base_dir '%s' is not a directory", name, baseDir)
	}
	return &localAdapter{cfg: cfg, name: name, baseDir: baseDir}, nil
}

func (a *localAdapter) Close() error                        { return nil }
func (a *localAdapter) Type() string                        { return ProviderType }
func (a *localAdapter) Name() string                        { return a.name }
func (a *localAdapter) Config() storageconfig.StorageConfig { return a.cfg }

// Upload writes to a temporary file next to the target and renames it into place.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return fmt.Errorf("create temporary file in '%s': %w", dir, err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write '%s': %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close '%s': %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename into '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("open '%s': %w", fullPath, err)
	}
	return file, nil
}

// ListObjects walks the bucket directory. Object names are slash separated and relative to the bucket.
func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	root, err := a.resolvePath(bucket, "")
	if err != nil {
		return err
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		objectName := filepath.ToSlash(rel)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("list objects in '%s' with prefix '%s': %w", root, prefix, err)
	}
	return nil
}

func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete '%s': %w", fullPath, err)
	}
	return nil
}

// resolvePath joins bucket and objectName below the base directory and rejects
// anything that would escape it.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(a.baseDir, bucket, filepath.FromSlash(objectName))
	rel, err := filepath.Rel(a.baseDir, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("local storage adapter '%s': path '%s' is outside of base_dir '%s'", a.name, filepath.Join(bucket, objectName), a.baseDir)
	}
	return fullPath, nil
}
