// Package item implements the chunk-oriented step: items are read and processed one at a
// time and written a chunk at a time, each chunk inside its own transaction.
package item

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
	tx "github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
	"github.com/tigerroll/taxiemissions/pkg/batch/engine/step/retry"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// Config carries the collaborators of a ChunkStep.
type Config struct {
	ChunkSize      int
	TxManager      tx.TransactionManager
	JobRepository  repository.JobRepository
	RetryPolicy    retry.RetryPolicy // nil means no retry
	StepListeners  []port.StepExecutionListener
	ChunkListeners []port.ChunkListener
	MetricRecorder metrics.MetricRecorder // nil means no-op
	Tracer         metrics.Tracer         // nil means no-op
}

// ChunkStep reads items of type I, processes them into O and writes chunks of O.
type ChunkStep[I, O any] struct {
	name      string
	reader    port.ItemReader[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	cfg       Config
}

// NewChunkStep creates a ChunkStep.
//
// The writer is opened before the reader and closed after it, so a writer that publishes
// its output in Close (e.g. a table swap) does so once the source is released.
func NewChunkStep[I, O any](name string, reader port.ItemReader[I], processor port.ItemProcessor[I, O], writer port.ItemWriter[O], cfg Config) *ChunkStep[I, O] {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = retry.NoRetry()
	}
	if cfg.MetricRecorder == nil {
		cfg.MetricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = metrics.NewNoOpTracer()
	}
	return &ChunkStep[I, O]{name: name, reader: reader, processor: processor, writer: writer, cfg: cfg}
}

var _ port.Step = (*ChunkStep[any, any])(nil)

func (s *ChunkStep[I, O]) ID() string       { return s.name }
func (s *ChunkStep[I, O]) StepName() string { return s.name }

// Execute runs the step to completion and persists the final StepExecution.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	logger.Infof("ChunkStep '%s' executing.", s.name)
	ctx, endSpan := s.cfg.Tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)

	stepExecution.MarkAsStarted()
	if err := s.cfg.JobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(s.name, "Failed to update StepExecution status to STARTED", err, false, false)
	}
	s.cfg.MetricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.cfg.StepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	runErr := s.run(ctx, stepExecution)

	if runErr != nil {
		s.cfg.Tracer.RecordError(ctx, s.name, runErr)
		stepExecution.MarkAsFailed(runErr)
	} else {
		stepExecution.MarkAsCompleted()
	}
	for _, l := range s.cfg.StepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.cfg.MetricRecorder.RecordStepEnd(ctx, stepExecution)

	if err := s.cfg.JobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		logger.Errorf("ChunkStep '%s': Failed to update final StepExecution state: %v", s.name, err)
		if runErr == nil {
			runErr = err
		}
	}
	logger.Infof("ChunkStep '%s' finished. ExitStatus: %s (read=%d, filtered=%d, written=%d, commits=%d)",
		s.name, stepExecution.ExitStatus, stepExecution.ReadCount, stepExecution.FilterCount, stepExecution.WriteCount, stepExecution.CommitCount)
	return runErr
}

func (s *ChunkStep[I, O]) run(ctx context.Context, se *model.StepExecution) (runErr error) {
	if err := s.writer.Open(ctx, se.ExecutionContext); err != nil {
		return exception.NewBatchError(s.name, "Failed to open ItemWriter", err, false, false)
	}
	if err := s.reader.Open(ctx, se.ExecutionContext); err != nil {
		s.discard(ctx)
		return exception.NewBatchError(s.name, "Failed to open ItemReader", err, false, false)
	}
	if st, ok := s.processor.(port.ItemStream); ok {
		if err := st.Open(ctx, se.ExecutionContext); err != nil {
			runErr = exception.NewBatchError(s.name, "Failed to open ItemProcessor", err, false, false)
		}
	}

	for runErr == nil {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		eof, err := s.doChunk(ctx, se)
		if err != nil {
			runErr = err
			break
		}
		if eof {
			logger.Debugf("ChunkStep '%s': Reached end of input.", s.name)
			break
		}
	}

	if err := s.reader.Close(ctx); err != nil {
		logger.Warnf("ChunkStep '%s': Failed to close ItemReader: %v", s.name, err)
		if runErr == nil {
			runErr = exception.NewBatchError(s.name, "Failed to close ItemReader", err, false, false)
		}
	}

	if runErr == nil {
		if err := s.writer.Close(ctx); err != nil {
			runErr = exception.NewBatchError(s.name, "Failed to close ItemWriter", err, false, false)
		}
	} else {
		s.discard(ctx)
	}

	for _, c := range []interface{}{s.reader, s.processor, s.writer} {
		if p, ok := c.(port.ExecutionContextProvider); ok {
			se.ExecutionContext.Merge(p.ExecutionContext())
		}
	}
	return runErr
}

// discard releases the writer after a failure, dropping partial output when it can.
func (s *ChunkStep[I, O]) discard(ctx context.Context) {
	var err error
	if a, ok := s.writer.(port.Abortable); ok {
		err = a.Abort(ctx)
	} else {
		err = s.writer.Close(ctx)
	}
	if err != nil {
		logger.Warnf("ChunkStep '%s': Failed to release ItemWriter after failure: %v", s.name, err)
	}
}

// doChunk reads and processes up to ChunkSize items and writes the survivors in one transaction.
// It reports whether the reader is exhausted.
func (s *ChunkStep[I, O]) doChunk(ctx context.Context, se *model.StepExecution) (bool, error) {
	for _, l := range s.cfg.ChunkListeners {
		l.BeforeChunk(ctx, se)
	}

	items := make([]O, 0, s.cfg.ChunkSize)
	read, filtered := 0, 0
	eof := false
	for read < s.cfg.ChunkSize {
		item, err := s.reader.Read(ctx)
		if err != nil {
			if errors.Is(err, port.ErrNoMoreItems) || errors.Is(err, io.EOF) {
				eof = true
				break
			}
			return false, exception.NewBatchError(s.name, fmt.Sprintf("Item read failed after %d items", se.ReadCount+read), err, false, false)
		}
		read++

		out, err := s.processor.Process(ctx, item)
		if err != nil {
			return false, exception.NewBatchError(s.name, fmt.Sprintf("Item process failed at item %d", se.ReadCount+read), err, false, false)
		}
		if isZero(out) {
			filtered++
			continue
		}
		items = append(items, out)
	}

	se.ReadCount += read
	se.FilterCount += filtered
	if read == 0 {
		return eof, nil
	}

	if len(items) > 0 {
		start := time.Now()
		if err := s.writeChunk(ctx, se, items); err != nil {
			return false, err
		}
		s.cfg.MetricRecorder.RecordDuration(ctx, "chunk.write", time.Since(start), map[string]string{"step": s.name})
		se.WriteCount += len(items)
		se.CommitCount++
	}
	s.cfg.MetricRecorder.RecordChunkCommit(ctx, se, read, filtered, len(items))

	for _, l := range s.cfg.ChunkListeners {
		l.AfterChunk(ctx, se)
	}
	logger.Debugf("ChunkStep '%s': chunk done (read=%d, filtered=%d, written=%d).", s.name, read, filtered, len(items))
	return eof, nil
}

// writeChunk writes items in a fresh transaction, retrying the whole transaction on transient failures.
func (s *ChunkStep[I, O]) writeChunk(ctx context.Context, se *model.StepExecution, items []O) error {
	return retry.Do(ctx, s.cfg.RetryPolicy, "ChunkStep '"+s.name+"'", func(int) error {
		t, err := s.cfg.TxManager.Begin(ctx)
		if err != nil {
			return exception.NewBatchError(s.name, "Failed to begin transaction for chunk", err, false, exception.IsTemporary(err))
		}
		if err := s.writer.Write(tx.WithTx(ctx, t), t, items); err != nil {
			s.rollback(ctx, se, t)
			return exception.NewBatchError(s.name, "Item write failed", err, false, exception.IsTemporary(err))
		}
		if err := s.cfg.TxManager.Commit(t); err != nil {
			s.rollback(ctx, se, t)
			return exception.NewBatchError(s.name, "Failed to commit transaction for chunk", err, false, exception.IsTemporary(err))
		}
		return nil
	})
}

func (s *ChunkStep[I, O]) rollback(ctx context.Context, se *model.StepExecution, t tx.Tx) {
	if err := s.cfg.TxManager.Rollback(t); err != nil {
		logger.Warnf("ChunkStep '%s': Rollback failed: %v", s.name, err)
	}
	se.RollbackCount++
	s.cfg.MetricRecorder.RecordChunkRollback(ctx, se)
}

// isZero reports whether v is the zero value of its type; processors return it to filter an item.
func isZero[T any](v T) bool {
	return reflect.ValueOf(&v).Elem().IsZero()
}
