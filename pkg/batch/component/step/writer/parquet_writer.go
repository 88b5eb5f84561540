package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/storage"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection to use.
	StorageRef string `mapstructure:"storage_ref"`
	// Bucket overrides the connection's default bucket.
	Bucket string `mapstructure:"bucket"`
	// OutputBaseDir is the prefix under which partitions are written (e.g. "exports/yellow").
	OutputBaseDir string `mapstructure:"output_base_dir"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `mapstructure:"compression_type"`
	// MaxRowsPerFile caps the rows of one file. Zero means one file per partition.
	MaxRowsPerFile int `mapstructure:"max_rows_per_file"`
}

// ParquetWriter buffers items by partition and writes them as Parquet files through a
// storage connection. Every Open replaces what an earlier run left under OutputBaseDir.
//
// Files are named <OutputBaseDir>/<partition>/part-NNNNN.parquet and are uploaded when a
// partition reaches MaxRowsPerFile, and for the remaining rows on Close.
type ParquetWriter[T any] struct {
	name     string
	cfg      ParquetWriterConfig
	resolver storage.StorageConnectionResolver
	// prototype is a pointer to a zero value of T; parquet-go derives the schema from its tags.
	prototype        *T
	partitionKeyFunc func(T) (string, error)
	codec            parquet.CompressionCodec

	conn     storage.StorageConnection
	buffered map[string][]T
	fileSeq  map[string]int
	uploaded []string
	rows     int
}

// NewParquetWriter validates cfg and creates the writer.
//
// Parameters:
//
//	name: The unique name of the writer.
//	cfg: Storage connection, bucket, output directory, compression and file size.
//	resolver: Resolver for storage connections.
//	prototype: A prototype instance of the item type for schema reflection.
//	partitionKeyFunc: A function to extract the partition key from an item.
//
// Returns:
//
//	*ParquetWriter[T]: The writer.
//	error: An error if cfg is incomplete or names an unknown compression.
func NewParquetWriter[T any](
	name string,
	cfg ParquetWriterConfig,
	resolver storage.StorageConnectionResolver,
	prototype *T,
	partitionKeyFunc func(T) (string, error),
) (*ParquetWriter[T], error) {
	if cfg.StorageRef == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetWriter '%s' requires 'storage_ref'", name)
	}
	if strings.Trim(cfg.OutputBaseDir, "/") == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetWriter '%s' requires a non-root 'output_base_dir'", name)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	codec, err := getCompressionCodec(cfg.CompressionType)
	if err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s'", name), err, false, false)
	}
	cfg.OutputBaseDir = strings.Trim(cfg.OutputBaseDir, "/")
	return &ParquetWriter[T]{
		name:             name,
		cfg:              cfg,
		resolver:         resolver,
		prototype:        prototype,
		partitionKeyFunc: partitionKeyFunc,
		codec:            codec,
	}, nil
}

var _ port.ItemWriter[any] = (*ParquetWriter[any])(nil)
var _ port.Abortable = (*ParquetWriter[any])(nil)
var _ port.ExecutionContextProvider = (*ParquetWriter[any])(nil)

// Open resolves the storage connection and deletes every object under OutputBaseDir.
func (w *ParquetWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.cfg.StorageRef)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to resolve storage connection '%s'", w.name, w.cfg.StorageRef), err, false, false)
	}
	w.conn = conn
	w.buffered = make(map[string][]T)
	w.fileSeq = make(map[string]int)
	w.uploaded = nil
	w.rows = 0

	var stale []string
	err = conn.ListObjects(ctx, w.cfg.Bucket, w.cfg.OutputBaseDir+"/", func(objectName string) error {
		stale = append(stale, objectName)
		return nil
	})
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to list '%s'", w.name, w.cfg.OutputBaseDir), err, false, exception.IsTemporary(err))
	}
	for _, obj := range stale {
		if err := conn.DeleteObject(ctx, w.cfg.Bucket, obj); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to delete previous export '%s'", w.name, obj), err, false, exception.IsTemporary(err))
		}
	}
	logger.Infof("ParquetWriter '%s' opened. Storage: %s, base directory: %s, previous objects removed: %d", w.name, w.cfg.StorageRef, w.cfg.OutputBaseDir, len(stale))
	return nil
}

// Write buffers items by partition key and flushes partitions that reached MaxRowsPerFile.
// The transaction is not used.
func (w *ParquetWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) error {
	for _, item := range items {
		key, err := w.partitionKeyFunc(item)
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to get partition key", w.name), err, false, false)
		}
		w.buffered[key] = append(w.buffered[key], item)
		if w.cfg.MaxRowsPerFile > 0 && len(w.buffered[key]) >= w.cfg.MaxRowsPerFile {
			if err := w.flush(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close writes the remaining buffered rows, one file per partition. Errors of all partitions are collected.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	if w.conn == nil {
		return nil
	}
	keys := make([]string, 0, len(w.buffered))
	for k, items := range w.buffered {
		if len(items) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var multiErr error
	for _, k := range keys {
		if err := w.flush(ctx, k); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}
	logger.Infof("ParquetWriter '%s': %d rows written to %d files under %s.", w.name, w.rows, len(w.uploaded), w.cfg.OutputBaseDir)
	w.buffered = nil
	w.conn = nil
	return multiErr
}

// Abort deletes the files uploaded by this run.
func (w *ParquetWriter[T]) Abort(ctx context.Context) error {
	if w.conn == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	var multiErr error
	for _, obj := range w.uploaded {
		if err := w.conn.DeleteObject(ctx, w.cfg.Bucket, obj); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}
	logger.Warnf("ParquetWriter '%s': Aborted, %d uploaded files removed.", w.name, len(w.uploaded))
	w.buffered = nil
	w.uploaded = nil
	w.conn = nil
	return multiErr
}

// flush encodes the buffered rows of one partition into a file and uploads it.
func (w *ParquetWriter[T]) flush(ctx context.Context, key string) (err error) {
	items := w.buffered[key]
	if len(items) == 0 {
		return nil
	}
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, w.prototype, 1)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to create Parquet writer for partition '%s'", w.name, key), err, false, false)
	}
	pw.CompressionType = w.codec
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to encode row for partition '%s'", w.name, key), err, false, false)
		}
	}

	// parquet-go panics on some schema mismatches during the final flush.
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("ParquetWriter '%s': Recovered from panic during WriteStop: %v", w.name, r)
				err = exception.NewBatchErrorf("writer", "ParquetWriter '%s': Parquet writer panicked for partition '%s': %v", w.name, key, r)
			}
		}()
		if stopErr := pw.WriteStop(); stopErr != nil {
			err = exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to finish file for partition '%s'", w.name, key), stopErr, false, false)
		}
	}()
	if err != nil {
		return err
	}

	objectName := path.Join(w.cfg.OutputBaseDir, key, fmt.Sprintf("part-%05d.parquet", w.fileSeq[key]))
	if err := w.conn.Upload(ctx, w.cfg.Bucket, objectName, buf, "application/octet-stream"); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': failed to upload '%s'", w.name, objectName), err, false, exception.IsTemporary(err))
	}
	logger.Debugf("ParquetWriter '%s': Uploaded %s (%d rows).", w.name, objectName, len(items))
	w.fileSeq[key]++
	w.uploaded = append(w.uploaded, objectName)
	w.rows += len(items)
	w.buffered[key] = items[:0]
	return nil
}

func (w *ParquetWriter[T]) ExecutionContext() model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(w.name+".rows_written", w.rows)
	ec.Put(w.name+".files_written", len(w.uploaded))
	return ec
}

// Files returns the object names uploaded so far, in upload order.
func (w *ParquetWriter[T]) Files() []string {
	return append([]string(nil), w.uploaded...)
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
