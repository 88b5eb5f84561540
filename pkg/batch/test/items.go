package test

import (
	"context"
	"sync"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// SliceItemReader reads items from an in-memory slice.
type SliceItemReader[O any] struct {
	items []O
	pos   int
}

// NewSliceItemReader returns a reader over items. The slice is not copied.
func NewSliceItemReader[O any](items []O) *SliceItemReader[O] {
	return &SliceItemReader[O]{items: items}
}

// Open rewinds the reader.
func (r *SliceItemReader[O]) Open(_ context.Context, _ model.ExecutionContext) error {
	logger.Debugf("SliceItemReader: Open called with %d items.", len(r.items))
	r.pos = 0
	return nil
}

// Read returns the next item or [port.ErrNoMoreItems].
func (r *SliceItemReader[O]) Read(_ context.Context) (O, error) {
	if r.pos >= len(r.items) {
		var zero O
		return zero, port.ErrNoMoreItems
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

func (r *SliceItemReader[O]) Close(_ context.Context) error {
	return nil
}

var _ port.ItemReader[int] = (*SliceItemReader[int])(nil)

// PassThroughItemProcessor returns every item unchanged.
type PassThroughItemProcessor[T any] struct{}

// NewPassThroughItemProcessor creates a [PassThroughItemProcessor].
func NewPassThroughItemProcessor[T any]() port.ItemProcessor[T, T] {
	return PassThroughItemProcessor[T]{}
}

func (PassThroughItemProcessor[T]) Process(_ context.Context, item T) (T, error) {
	return item, nil
}

// FuncItemProcessor adapts a function to [port.ItemProcessor].
type FuncItemProcessor[I, O any] func(ctx context.Context, item I) (O, error)

func (f FuncItemProcessor[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// ExecutionContextItemWriter keeps the items it is given and reports their count
// in the step ExecutionContext under key. It writes nothing to the database.
type ExecutionContextItemWriter[I any] struct {
	key string

	mu      sync.Mutex
	written []I
	closed  bool
	aborted bool
}

// NewExecutionContextItemWriter creates the writer. An empty key defaults to "writer.write_count".
func NewExecutionContextItemWriter[I any](key string) *ExecutionContextItemWriter[I] {
	if key == "" {
		key = "writer.write_count"
	}
	return &ExecutionContextItemWriter[I]{key: key}
}

func (w *ExecutionContextItemWriter[I]) Open(_ context.Context, _ model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written, w.closed, w.aborted = nil, false, false
	return nil
}

func (w *ExecutionContextItemWriter[I]) Write(_ context.Context, _ tx.Tx, items []I) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	logger.Debugf("ExecutionContextItemWriter: writing %d items.", len(items))
	w.written = append(w.written, items...)
	return nil
}

func (w *ExecutionContextItemWriter[I]) Close(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Abort marks the output as discarded.
func (w *ExecutionContextItemWriter[I]) Abort(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.aborted = true
	return nil
}

// ExecutionContext implements [port.ExecutionContextProvider].
func (w *ExecutionContextItemWriter[I]) ExecutionContext() model.ExecutionContext {
	w.mu.Lock()
	defer w.mu.Unlock()
	ec := model.NewExecutionContext()
	ec.Put(w.key, len(w.written))
	return ec
}

// Items returns a copy of everything written so far.
func (w *ExecutionContextItemWriter[I]) Items() []I {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]I(nil), w.written...)
}

// Closed reports whether Close was called. Aborted reports whether Abort was called.
func (w *ExecutionContextItemWriter[I]) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *ExecutionContextItemWriter[I]) Aborted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aborted
}

var (
	_ port.ItemWriter[int]               = (*ExecutionContextItemWriter[int])(nil)
	_ port.Abortable                     = (*ExecutionContextItemWriter[int])(nil)
	_ port.ExecutionContextProvider      = (*ExecutionContextItemWriter[int])(nil)
	_ port.ItemProcessor[string, string] = PassThroughItemProcessor[string]{}
)
