// Package metrics provides an abstract interface for recording metrics related
// to batch execution, plus Prometheus and no-op implementations.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/ripple/internal/core/model"
)

// MetricRecorder is an abstract interface for recording metrics related to batch execution.
// It provides a standardized way to record job, step, item-level and chunk events,
// which facilitates integration with different metrics backends.
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	//
	// ctx: The context for the operation.
	// execution: Details of the started JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)

	// RecordJobEnd records the end of a JobExecution.
	//
	// ctx: The context for the operation.
	// execution: Details of the ended JobExecution.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)

	// RecordStepStart records the start of a StepExecution.
	//
	// ctx: The context for the operation.
	// execution: Details of the started StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)

	// RecordStepEnd records the end of a StepExecution.
	//
	// ctx: The context for the operation.
	// execution: Details of the ended StepExecution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records the successful reading of an item.
	//
	// ctx: The context for the operation.
	// stepName: The name of the step where the item was read.
	RecordItemRead(ctx context.Context, stepName string)

	// RecordItemProcess records the successful processing of an item.
	//
	// ctx: The context for the operation.
	// stepName: The name of the step where the item was processed.
	RecordItemProcess(ctx context.Context, stepName string)

	// RecordItemWrite records the successful writing of items.
	//
	// ctx: The context for the operation.
	// stepName: The name of the step where the items were written.
	// count: The number of items written.
	RecordItemWrite(ctx context.Context, stepName string, count int)

	// RecordItemFilter records an item filtered out by the processor
	// (no output produced, not an error).
	//
	// ctx: The context for the operation.
	// stepName: The name of the step where the item was filtered.
	RecordItemFilter(ctx context.Context, stepName string)

	// RecordItemSkip records the skipping of an item.
	//
	// ctx: The context for the operation.
	// stepName: The name of the step where the item was skipped.
	// reason: A string indicating the phase of the skip ("read", "process", "write").
	RecordItemSkip(ctx context.Context, stepName string, reason string)

	// RecordItemRetry records the retry of an item.
	//
	// ctx: The context for the operation.
	// stepName: The name of the step where the item was retried.
	// reason: A string indicating the phase of the retry ("read", "process", "write").
	RecordItemRetry(ctx context.Context, stepName string, reason string)

	// RecordChunkCommit records the commitment of a chunk.
	//
	// ctx: The context for the operation.
	// stepName: The name of the step where the chunk was committed.
	// count: The number of items committed.
	RecordChunkCommit(ctx context.Context, stepName string, count int)

	// RecordChunkFetch records the completion of one store chunk query,
	// including the number of pages walked and records received.
	//
	// ctx: The context for the operation.
	// stepName: The name of the step that fetched the chunk.
	// pages: The number of result pages walked.
	// records: The number of records received.
	RecordChunkFetch(ctx context.Context, stepName string, pages, records int)

	// RecordDuration records the execution time of a specific operation.
	//
	// ctx: The context for the operation.
	// name: The name of the duration to record (e.g., "completion_request_duration").
	// duration: The length of the duration to record.
	// tags: A map of additional tags or attributes to associate with the duration.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
