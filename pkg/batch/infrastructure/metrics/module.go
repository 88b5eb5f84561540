package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// NewMetricRecorder selects the recorder named by infrastructure.metrics.exporter.
// An unreachable OTLP endpoint degrades to the no-op recorder instead of failing the job.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.InfrastructureConfig) metrics.MetricRecorder {
	switch cfg.Metrics.Exporter {
	case "prometheus":
		logger.Infof("Metrics: Prometheus recorder (push gateway: %q).", cfg.Metrics.Prometheus.PushGatewayURL)
		return NewPrometheusRecorder(cfg.Metrics.Prometheus)
	case "otlp":
		ctx := context.Background()
		exp, err := NewMetricExporter(ctx, cfg.Metrics.OTLP)
		if err != nil {
			logger.Warnf("Metrics: OTLP exporter unavailable, metrics disabled: %v", err)
			return metrics.NewNoOpMetricRecorder()
		}
		res, err := NewResource(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			logger.Warnf("Metrics: resource detection failed: %v", err)
		}
		interval := time.Duration(cfg.Metrics.OTLP.ExportIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 15 * time.Second
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		rec, err := NewOTelMetricRecorder(mp)
		if err != nil {
			logger.Warnf("Metrics: creating instruments failed, metrics disabled: %v", err)
			return metrics.NewNoOpMetricRecorder()
		}
		logger.Infof("Metrics: OTLP recorder (%s %s).", cfg.Metrics.OTLP.Protocol, cfg.Metrics.OTLP.Endpoint)
		return rec
	default:
		return metrics.NewNoOpMetricRecorder()
	}
}

// NewTracer returns an OpenTelemetry tracer when tracing is enabled, otherwise a no-op.
func NewTracer(lc fx.Lifecycle, cfg *config.InfrastructureConfig) metrics.Tracer {
	if !cfg.Tracing.Enabled {
		return metrics.NewNoOpTracer()
	}
	ctx := context.Background()
	exp, err := NewTraceExporter(ctx, cfg.Tracing.OTLP)
	if err != nil {
		logger.Warnf("Tracing: OTLP exporter unavailable, tracing disabled: %v", err)
		return metrics.NewNoOpTracer()
	}
	res, err := NewResource(ctx, cfg.Tracing.ServiceName)
	if err != nil {
		logger.Warnf("Tracing: resource detection failed: %v", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	logger.Infof("Tracing: exporting spans to %s (%s).", cfg.Tracing.OTLP.Endpoint, cfg.Tracing.OTLP.Protocol)
	return NewOpenTelemetryTracer(tp)
}

// Module provides metrics.MetricRecorder and metrics.Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
