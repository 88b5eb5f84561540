package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	infra "github.com/tigerroll/taxiemissions/pkg/batch/infrastructure/metrics"
)

func finishedStep(t *testing.T) *model.StepExecution {
	t.Helper()
	je := model.NewJobExecution("taxiEmissionsJob", model.NewJobParameters())
	se := model.NewStepExecution(je, "yellowTransformStep")
	se.MarkAsStarted()
	se.ReadCount, se.WriteCount = 10, 10
	se.MarkAsCompleted()
	return se
}

func TestPrometheusRecorder_Counts(t *testing.T) {
	r := infra.NewPrometheusRecorder(config.PrometheusConfig{Namespace: "test"})
	se := finishedStep(t)
	ctx := context.Background()

	r.RecordChunkCommit(ctx, se, 100, 3, 97)
	r.RecordChunkCommit(ctx, se, 50, 0, 50)
	r.RecordChunkRollback(ctx, se)
	r.RecordStepEnd(ctx, se)

	expected := `
# HELP test_step_write_total Items written by step.
# TYPE test_step_write_total counter
test_step_write_total{job_name="taxiEmissionsJob",step_name="yellowTransformStep"} 147
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), stringsReader(expected), "test_step_write_total"))

	n, err := testutil.GatherAndCount(r.Registry(), "test_step_commit_total", "test_step_rollback_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrometheusRecorder_FlushPushesToGateway(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Contains(t, r.URL.Path, "/metrics/job/taxiEmissionsJob")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := infra.NewPrometheusRecorder(config.PrometheusConfig{Namespace: "test", PushGatewayURL: srv.URL})
	je := model.NewJobExecution("taxiEmissionsJob", model.NewJobParameters())
	r.RecordJobStart(context.Background(), je)

	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestPrometheusRecorder_FlushWithoutGateway(t *testing.T) {
	r := infra.NewPrometheusRecorder(config.PrometheusConfig{})
	assert.NoError(t, r.Flush(context.Background()))
}

func TestOTelMetricRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := infra.NewOTelMetricRecorder(mp)
	require.NoError(t, err)

	ctx := context.Background()
	se := finishedStep(t)
	r.RecordChunkCommit(ctx, se, 10, 2, 8)
	r.RecordStepEnd(ctx, se)
	r.RecordDuration(ctx, "swap", 20*time.Millisecond, map[string]string{"table": "yellow_trips_transformed"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["batch.step.items"])
	assert.True(t, names["batch.step.commits"])
	assert.True(t, names["batch.step.duration"])
	assert.True(t, names["batch.operation.duration"])
}

func TestOpenTelemetryTracer_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := infra.NewOpenTelemetryTracer(tp)

	je := model.NewJobExecution("taxiEmissionsJob", model.NewJobParameters())
	ctx, endJob := tr.StartJobSpan(context.Background(), je)
	se := model.NewStepExecution(je, "greenTransformStep")
	stepCtx, endStep := tr.StartStepSpan(ctx, se)
	tr.RecordEvent(stepCtx, "swap", map[string]interface{}{"rows": 3})
	se.MarkAsCompleted()
	endStep()
	je.MarkAsCompleted()
	endJob()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "step greenTransformStep", spans[0].Name())
	assert.Equal(t, "job taxiEmissionsJob", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "swap", spans[0].Events()[0].Name)
}
