// Package port defines the core interfaces (ports) for the batch application.
// These interfaces abstract the application's capabilities and dependencies,
// allowing for flexible implementation and testing.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/ripple/internal/core/model"
)

// ErrNoMoreItems is returned by ItemReader.Read when the input is exhausted.
var ErrNoMoreItems = errors.New("no more items to read")

// Job is the interface for an executable batch job.
type Job interface {
	// Run executes the entire job flow.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//   jobParameters: The job parameters for the execution.
	//
	// Returns:
	//   error: An error if the job execution fails.
	Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error
	// JobName returns the logical name of the job.
	//
	// Returns:
	//   string: The logical name of the job.
	JobName() string
	// ValidateParameters validates job parameters before job execution.
	//
	// Parameters:
	//   params: The job parameters to validate.
	//
	// Returns:
	//   error: An error if validation fails.
	ValidateParameters(params model.JobParameters) error
}

// Step is the interface for a single step executed within a job.
type Step interface {
	// Execute executes the business logic of the step.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//   stepExecution: The current StepExecution instance.
	//
	// Returns:
	//   error: An error if the step execution encounters a fatal issue or exceeds retry/skip limits.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
	// StepName returns the logical name of the step.
	//
	// Returns:
	//   string: The logical name string for the step.
	StepName() string
}

// ItemReader is the interface for a data reading step.
// O is the type of item to be read.
type ItemReader[O any] interface {
	// Open opens resources and restores state from ExecutionContext.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   ec: The ExecutionContext at the start of reading.
	//
	// Returns:
	//   error: An error if opening fails.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read reads the next item. Returns ErrNoMoreItems if no more items are available.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   O: The next item.
	//   error: ErrNoMoreItems if no more items are available, or another error if reading fails.
	Read(ctx context.Context) (O, error)
	// Close closes resources and saves state.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if closing fails.
	Close(ctx context.Context) error
	// GetExecutionContext retrieves the current state of the ItemReader as ExecutionContext.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   model.ExecutionContext: The current ExecutionContext.
	//   error: An error if retrieval fails.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemProcessor is the interface for an item processing step.
// I is the type of input item, O is the type of output item.
type ItemProcessor[I, O any] interface {
	// Process processes an input item and returns an output item.
	// Returns the zero value of O and a nil error if the item is filtered.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   item: The input item to be processed.
	//
	// Returns:
	//   O: The processed item, or the zero value if filtered.
	//   error: An error if processing fails.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter is the interface for a data writing step.
// I is the type of item to be written.
type ItemWriter[I any] interface {
	// Open opens resources and restores state from ExecutionContext.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   ec: The ExecutionContext at the start of writing.
	//
	// Returns:
	//   error: An error if opening fails.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Write persists a list of items.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   items: The list of items to be written.
	//
	// Returns:
	//   error: An error if writing fails.
	Write(ctx context.Context, items []I) error
	// Close closes resources and saves state.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//
	// Returns:
	//   error: An error if closing fails.
	Close(ctx context.Context) error
}

// JobExecutionListener is an interface for handling job execution events.
type JobExecutionListener interface {
	// BeforeJob is called just before a job execution starts.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob is called after a job execution completes (regardless of success or failure).
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// StepExecutionListener is an interface for handling step execution events.
type StepExecutionListener interface {
	// BeforeStep is called just before a step execution starts.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	// AfterStep is called after a step execution completes (regardless of success or failure).
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// RetryItemListener is an interface for handling item-level retry events.
type RetryItemListener interface {
	// OnRetryRead is called before an item read is retried.
	OnRetryRead(ctx context.Context, err error)
	// OnRetryProcess is called before an item process is retried.
	OnRetryProcess(ctx context.Context, item interface{}, err error)
	// OnRetryWrite is called before an item write is retried.
	OnRetryWrite(ctx context.Context, items []interface{}, err error)
}

// SkipListener is an interface for handling item skip events.
type SkipListener interface {
	// OnSkipRead is called after a skip occurs during reading.
	OnSkipRead(ctx context.Context, err error)
	// OnSkipProcess is called after a skip occurs during processing.
	OnSkipProcess(ctx context.Context, item interface{}, err error)
	// OnSkipWrite is called after a skip occurs during writing.
	OnSkipWrite(ctx context.Context, item interface{}, err error)
}
