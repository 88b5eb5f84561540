// Package metrics implements the core metric and tracing hooks with Prometheus and OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/taxiemissions/pkg/batch/core/metrics"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// PrometheusRecorder keeps batch metrics in a private registry. A batch process is
// short-lived, so instead of being scraped the registry is pushed to a Pushgateway on Flush.
type PrometheusRecorder struct {
	registry       *prometheus.Registry
	pushGatewayURL string
	jobName        string

	jobDuration   *prometheus.HistogramVec
	jobStatus     *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepStatus    *prometheus.CounterVec
	itemsRead     *prometheus.CounterVec
	itemsFiltered *prometheus.CounterVec
	itemsWritten  *prometheus.CounterVec
	commits       *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	durations     *prometheus.HistogramVec
}

// NewPrometheusRecorder creates and registers the collectors.
func NewPrometheusRecorder(cfg config.PrometheusConfig) *PrometheusRecorder {
	ns := cfg.Namespace
	stepLabels := []string{"job_name", "step_name"}

	r := &PrometheusRecorder{
		registry:       prometheus.NewRegistry(),
		pushGatewayURL: cfg.PushGatewayURL,
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "job_duration_seconds",
			Help:    "Duration of job executions.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"job_name", "status", "exit_status"}),
		jobStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "job_status_total",
			Help: "Job executions by status transition.",
		}, []string{"job_name", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "step_duration_seconds",
			Help:    "Duration of step executions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		}, []string{"job_name", "step_name", "status", "exit_status"}),
		stepStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "step_status_total",
			Help: "Step executions by status transition.",
		}, []string{"job_name", "step_name", "status"}),
		itemsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "step_read_total", Help: "Items read by step.",
		}, stepLabels),
		itemsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "step_filter_total", Help: "Items filtered by step.",
		}, stepLabels),
		itemsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "step_write_total", Help: "Items written by step.",
		}, stepLabels),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "step_commit_total", Help: "Chunk commits by step.",
		}, stepLabels),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "step_rollback_total", Help: "Chunk rollbacks by step.",
		}, stepLabels),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "operation_duration_seconds",
			Help:    "Durations reported through RecordDuration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.jobDuration, r.jobStatus, r.stepDuration, r.stepStatus,
		r.itemsRead, r.itemsFiltered, r.itemsWritten, r.commits, r.rollbacks, r.durations,
	)
	return r
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)

// Registry exposes the registry, mainly for tests.
func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

func (r *PrometheusRecorder) RecordJobStart(_ context.Context, je *model.JobExecution) {
	r.jobName = je.JobName
	r.jobStatus.WithLabelValues(je.JobName, je.Status.String()).Inc()
}

func (r *PrometheusRecorder) RecordJobEnd(_ context.Context, je *model.JobExecution) {
	r.jobStatus.WithLabelValues(je.JobName, je.Status.String()).Inc()
	if je.EndTime == nil {
		return
	}
	r.jobDuration.WithLabelValues(je.JobName, je.Status.String(), je.ExitStatus.String()).
		Observe(je.EndTime.Sub(je.StartTime).Seconds())
}

func (r *PrometheusRecorder) RecordStepStart(_ context.Context, se *model.StepExecution) {
	r.stepStatus.WithLabelValues(jobNameOf(se), se.StepName, se.Status.String()).Inc()
}

func (r *PrometheusRecorder) RecordStepEnd(_ context.Context, se *model.StepExecution) {
	job := jobNameOf(se)
	r.stepStatus.WithLabelValues(job, se.StepName, se.Status.String()).Inc()
	if se.EndTime != nil {
		r.stepDuration.WithLabelValues(job, se.StepName, se.Status.String(), se.ExitStatus.String()).
			Observe(se.EndTime.Sub(se.StartTime).Seconds())
	}
}

func (r *PrometheusRecorder) RecordChunkCommit(_ context.Context, se *model.StepExecution, read, filtered, written int) {
	job := jobNameOf(se)
	r.itemsRead.WithLabelValues(job, se.StepName).Add(float64(read))
	r.itemsFiltered.WithLabelValues(job, se.StepName).Add(float64(filtered))
	r.itemsWritten.WithLabelValues(job, se.StepName).Add(float64(written))
	r.commits.WithLabelValues(job, se.StepName).Inc()
}

func (r *PrometheusRecorder) RecordChunkRollback(_ context.Context, se *model.StepExecution) {
	r.rollbacks.WithLabelValues(jobNameOf(se), se.StepName).Inc()
}

func (r *PrometheusRecorder) RecordDuration(_ context.Context, name string, d time.Duration, _ map[string]string) {
	r.durations.WithLabelValues(name).Observe(d.Seconds())
}

// Flush pushes the registry when a Pushgateway is configured.
func (r *PrometheusRecorder) Flush(ctx context.Context) error {
	if r.pushGatewayURL == "" {
		return nil
	}
	job := r.jobName
	if job == "" {
		job = "batch"
	}
	if err := push.New(r.pushGatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", r.pushGatewayURL, err)
	}
	logger.Debugf("Pushed metrics for job '%s' to %s.", job, r.pushGatewayURL)
	return nil
}

func jobNameOf(se *model.StepExecution) string {
	if se.JobExecution != nil {
		return se.JobExecution.JobName
	}
	return ""
}
