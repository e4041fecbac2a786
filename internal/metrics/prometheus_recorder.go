package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/logger"
)

// PrometheusRecorder is a Prometheus implementation of the MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Job metrics
	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	// Step metrics
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepFilterCount     *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec

	// Store fetch metrics
	chunkFetchCount  *prometheus.CounterVec
	pageFetchCount   *prometheus.CounterVec
	recordFetchCount *prometheus.CounterVec

	// Item metrics
	itemSkipCounter  *prometheus.CounterVec
	itemRetryCounter *prometheus.CounterVec

	// Generic durations
	operationDuration *prometheus.HistogramVec
}

var _ MetricRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status", "exit_status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_name", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step executions by status.",
		}, []string{"step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total items read by step.",
		}, []string{"step_name"}),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by step.",
		}, []string{"step_name"}),
		stepFilterCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_filter_total",
			Help: "Total items filtered by step.",
		}, []string{"step_name"}),
		stepCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"step_name"}),
		chunkFetchCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_store_chunk_fetch_total",
			Help: "Total record store chunk queries completed by step.",
		}, []string{"step_name"}),
		pageFetchCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_store_page_fetch_total",
			Help: "Total record store result pages walked by step.",
		}, []string{"step_name"}),
		recordFetchCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_store_record_fetch_total",
			Help: "Total records received from the record store by step.",
		}, []string{"step_name"}),
		itemSkipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_skip_total",
			Help: "Total items skipped by step and phase.",
		}, []string{"step_name", "reason"}),
		itemRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_retry_total",
			Help: "Total item retries by step and phase.",
		}, []string{"step_name", "reason"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named batch operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
	}

	registry.MustRegister(r.jobDurationSeconds)
	registry.MustRegister(r.jobStatusCounter)
	registry.MustRegister(r.stepDurationSeconds)
	registry.MustRegister(r.stepStatusCounter)
	registry.MustRegister(r.stepReadCount)
	registry.MustRegister(r.stepWriteCount)
	registry.MustRegister(r.stepFilterCount)
	registry.MustRegister(r.stepCommitCount)
	registry.MustRegister(r.chunkFetchCount)
	registry.MustRegister(r.pageFetchCount)
	registry.MustRegister(r.recordFetchCount)
	registry.MustRegister(r.itemSkipCounter)
	registry.MustRegister(r.itemRetryCounter)
	registry.MustRegister(r.operationDuration)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Push pushes the collected metrics to a Pushgateway under the given job name.
// A push failure is logged, not returned: metrics must never fail the batch.
func (r *PrometheusRecorder) Push(gatewayURL, jobName string) {
	if gatewayURL == "" {
		return
	}
	if err := push.New(gatewayURL, jobName).Gatherer(r.registry).Push(); err != nil {
		logger.Warnf("Failed to push metrics to Pushgateway '%s': %v", gatewayURL, err)
		return
	}
	logger.Debugf("Metrics pushed to Pushgateway '%s' for job '%s'.", gatewayURL, jobName)
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

// RecordJobEnd records the end of a JobExecution.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()

	r.jobDurationSeconds.WithLabelValues(
		execution.JobName,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(duration)

	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

// RecordStepStart records the start of a StepExecution.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepStatusCounter.WithLabelValues(execution.StepName, execution.Status.String()).Inc()
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

// RecordStepEnd records the end of a StepExecution.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()

	r.stepDurationSeconds.WithLabelValues(
		execution.StepName,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(duration)

	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

// RecordItemRead records successful item reads.
func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.stepReadCount.WithLabelValues(stepName).Inc()
}

// RecordItemProcess records successful item processing.
// Successful processing sits between read and write, so no separate counter is kept.
func (r *PrometheusRecorder) RecordItemProcess(ctx context.Context, stepName string) {
}

// RecordItemWrite records successful item writes.
func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.stepWriteCount.WithLabelValues(stepName).Add(float64(count))
}

// RecordItemSkip records item skips.
func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemSkipCounter.WithLabelValues(stepName, reason).Inc()
}

// RecordItemRetry records item retries.
func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetryCounter.WithLabelValues(stepName, reason).Inc()
}

// RecordChunkCommit records chunk commits.
func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.stepCommitCount.WithLabelValues(stepName).Inc()
}

// RecordChunkFetch records the completion of one store chunk query.
func (r *PrometheusRecorder) RecordChunkFetch(ctx context.Context, stepName string, pages, records int) {
	r.chunkFetchCount.WithLabelValues(stepName).Inc()
	r.pageFetchCount.WithLabelValues(stepName).Add(float64(pages))
	r.recordFetchCount.WithLabelValues(stepName).Add(float64(records))
}

// RecordDuration records the execution time of a named operation.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordItemFilter increments the filter counter for a step.
func (r *PrometheusRecorder) RecordItemFilter(ctx context.Context, stepName string) {
	r.stepFilterCount.WithLabelValues(stepName).Inc()
}
