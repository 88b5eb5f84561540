package item_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/taxiemissions/pkg/batch/core/tx"
	itemstep "github.com/tigerroll/taxiemissions/pkg/batch/engine/step/item"
	"github.com/tigerroll/taxiemissions/pkg/batch/engine/step/retry"
	"github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/repository/inmemory"
	testutil "github.com/tigerroll/taxiemissions/pkg/batch/test"
)

// dropEven filters even numbers by returning the zero value.
var dropEven = testutil.FuncItemProcessor[int, int](func(_ context.Context, n int) (int, error) {
	if n%2 == 0 {
		return 0, nil
	}
	return n, nil
})

type recordingChunkListener struct{ before, after int }

func (l *recordingChunkListener) BeforeChunk(context.Context, *model.StepExecution) { l.before++ }
func (l *recordingChunkListener) AfterChunk(context.Context, *model.StepExecution)  { l.after++ }

func setup(t *testing.T, stepName string) (*inmemory.InMemoryJobRepository, *model.JobExecution, *model.StepExecution) {
	t.Helper()
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	je := testutil.NewTestJobExecution("taxiEmissionsJob")
	require.NoError(t, repo.SaveJobExecution(ctx, je))
	se := model.NewStepExecution(je, stepName)
	require.NoError(t, repo.SaveStepExecution(ctx, se))
	return repo, je, se
}

func newTxManager() (*testutil.MockTxManager, *testutil.MockTx) {
	mtx := &testutil.MockTx{}
	txm := &testutil.MockTxManager{}
	txm.On("Begin", mock.Anything, mock.Anything).Return(mtx, nil)
	txm.On("Commit", mtx).Return(nil)
	txm.On("Rollback", mtx).Return(nil)
	return txm, mtx
}

func TestChunkStep_ReadProcessWrite(t *testing.T) {
	repo, je, se := setup(t, "numbersStep")
	txm, _ := newTxManager()
	writer := testutil.NewExecutionContextItemWriter[int]("numbers.written")
	chunks := &recordingChunkListener{}

	step := itemstep.NewChunkStep[int, int]("numbersStep",
		testutil.NewSliceItemReader([]int{1, 2, 3, 4, 5}), dropEven, writer,
		itemstep.Config{ChunkSize: 2, TxManager: txm, JobRepository: repo, ChunkListeners: []port.ChunkListener{chunks}})

	require.NoError(t, step.Execute(context.Background(), je, se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitStatusCompleted, se.ExitStatus)
	assert.Equal(t, 5, se.ReadCount)
	assert.Equal(t, 2, se.FilterCount)
	assert.Equal(t, 3, se.WriteCount)
	assert.Equal(t, 3, se.CommitCount)
	assert.Equal(t, []int{1, 3, 5}, writer.Items())
	assert.True(t, writer.Closed())
	assert.False(t, writer.Aborted())
	assert.Equal(t, 3, chunks.after)

	n, _ := se.ExecutionContext.GetInt("numbers.written")
	assert.Equal(t, 3, n)
	txm.AssertNumberOfCalls(t, "Begin", 3)
	txm.AssertNumberOfCalls(t, "Commit", 3)

	stored, err := repo.FindStepExecutionByID(context.Background(), se.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.WriteCount)
}

func TestChunkStep_AllFilteredChunkOpensNoTransaction(t *testing.T) {
	repo, je, se := setup(t, "evenStep")
	txm, _ := newTxManager()
	writer := testutil.NewExecutionContextItemWriter[int]("")

	step := itemstep.NewChunkStep[int, int]("evenStep",
		testutil.NewSliceItemReader([]int{2, 4, 6}), dropEven, writer,
		itemstep.Config{ChunkSize: 10, TxManager: txm, JobRepository: repo})

	require.NoError(t, step.Execute(context.Background(), je, se))
	assert.Equal(t, 3, se.FilterCount)
	assert.Equal(t, 0, se.WriteCount)
	txm.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything)
	assert.True(t, writer.Closed())
}

func TestChunkStep_ProcessorFailureAbortsWriter(t *testing.T) {
	repo, je, se := setup(t, "failingStep")
	txm, _ := newTxManager()
	writer := testutil.NewExecutionContextItemWriter[int]("")
	boom := testutil.FuncItemProcessor[int, int](func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, errors.New("missing column trip_distance")
		}
		return n, nil
	})

	step := itemstep.NewChunkStep[int, int]("failingStep",
		testutil.NewSliceItemReader([]int{1, 2, 3, 4}), boom, writer,
		itemstep.Config{ChunkSize: 2, TxManager: txm, JobRepository: repo})

	err := step.Execute(context.Background(), je, se)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column trip_distance")
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, 1, se.CommitCount, "first chunk was committed before the failure")
	assert.True(t, writer.Aborted())
	assert.False(t, writer.Closed())
	require.NotEmpty(t, se.Failures)
}

// flakyWriter fails its first Write with a transient error.
type flakyWriter struct {
	*testutil.ExecutionContextItemWriter[int]
	failures int
}

func (w *flakyWriter) Write(ctx context.Context, t tx.Tx, items []int) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("database is locked")
	}
	return w.ExecutionContextItemWriter.Write(ctx, t, items)
}

func TestChunkStep_RetriesTransientWriteFailure(t *testing.T) {
	repo, je, se := setup(t, "retryStep")
	txm, mtx := newTxManager()
	writer := &flakyWriter{ExecutionContextItemWriter: testutil.NewExecutionContextItemWriter[int](""), failures: 1}

	step := itemstep.NewChunkStep[int, int]("retryStep",
		testutil.NewSliceItemReader([]int{1, 3}), testutil.NewPassThroughItemProcessor[int](), writer,
		itemstep.Config{
			ChunkSize:     5,
			TxManager:     txm,
			JobRepository: repo,
			RetryPolicy:   retry.NewRetryPolicy(config.RetryConfig{MaxAttempts: 3, IntervalMillis: 1}),
		})

	require.NoError(t, step.Execute(context.Background(), je, se))
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, []int{1, 3}, writer.Items())
	txm.AssertCalled(t, "Rollback", mtx)
}

func TestChunkStep_WriteFailureWithoutRetry(t *testing.T) {
	repo, je, se := setup(t, "noRetryStep")
	txm, _ := newTxManager()
	writer := &flakyWriter{ExecutionContextItemWriter: testutil.NewExecutionContextItemWriter[int](""), failures: 1}

	step := itemstep.NewChunkStep[int, int]("noRetryStep",
		testutil.NewSliceItemReader([]int{1}), testutil.NewPassThroughItemProcessor[int](), writer,
		itemstep.Config{ChunkSize: 5, TxManager: txm, JobRepository: repo})

	require.Error(t, step.Execute(context.Background(), je, se))
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, 1, se.RollbackCount)
	assert.True(t, writer.Aborted())
}

// factorProcessor resolves its state in Open and fails there when the state is missing.
type factorProcessor struct {
	testutil.PassThroughItemProcessor[int]
	openErr   error
	opened    int
	inStepCtx bool
}

func (p *factorProcessor) Open(ctx context.Context, _ model.ExecutionContext) error {
	p.opened++
	p.inStepCtx = port.GetStepExecutionFromContext(ctx) != nil
	return p.openErr
}

func TestChunkStep_OpensProcessorBeforeReading(t *testing.T) {
	repo, je, se := setup(t, "openStep")
	txm, _ := newTxManager()
	writer := testutil.NewExecutionContextItemWriter[int]("")
	proc := &factorProcessor{}

	step := itemstep.NewChunkStep[int, int]("openStep",
		testutil.NewSliceItemReader([]int{}), proc, writer,
		itemstep.Config{ChunkSize: 2, TxManager: txm, JobRepository: repo})

	require.NoError(t, step.Execute(context.Background(), je, se))
	assert.Equal(t, 1, proc.opened)
	assert.True(t, proc.inStepCtx)
	assert.True(t, writer.Closed())
}

func TestChunkStep_ProcessorOpenFailureOnEmptyInput(t *testing.T) {
	repo, je, se := setup(t, "emptyStep")
	txm, _ := newTxManager()
	writer := testutil.NewExecutionContextItemWriter[int]("")
	notFound := errors.New("emissions factor not found")
	proc := &factorProcessor{openErr: notFound}

	step := itemstep.NewChunkStep[int, int]("emptyStep",
		testutil.NewSliceItemReader([]int{}), proc, writer,
		itemstep.Config{ChunkSize: 2, TxManager: txm, JobRepository: repo})

	err := step.Execute(context.Background(), je, se)
	require.Error(t, err)
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, 0, se.ReadCount)
	assert.True(t, writer.Aborted())
	assert.False(t, writer.Closed())
	txm.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything)
}
