// Package repository defines the persistence port for batch execution metadata.
// The metadata store records job history and checkpoints for observability;
// restart correctness of the pipeline itself derives from the output artifact.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/exception"
)

// ErrJobInstanceNotFound is returned when a JobInstance is not found.
var ErrJobInstanceNotFound = errors.New("job instance not found")

// ErrJobExecutionNotFound is returned when a JobExecution is not found.
var ErrJobExecutionNotFound = errors.New("job execution not found")

// ErrCheckpointDataNotFound is returned when checkpoint data is not found.
var ErrCheckpointDataNotFound = errors.New("checkpoint data not found")

func init() {
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
	exception.RegisterErrorType("ErrCheckpointDataNotFound", ErrCheckpointDataNotFound)
}

// JobRepository is the interface for persisting and managing batch execution metadata.
type JobRepository interface {
	// SaveJobInstance persists a new JobInstance.
	SaveJobInstance(ctx context.Context, instance *model.JobInstance) error

	// FindJobInstanceByJobNameAndParameters finds a JobInstance by job name and exact parameters.
	// Returns ErrJobInstanceNotFound if no matching instance exists.
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)

	// SaveJobExecution persists a new JobExecution.
	SaveJobExecution(ctx context.Context, execution *model.JobExecution) error

	// UpdateJobExecution updates the state of an existing JobExecution.
	UpdateJobExecution(ctx context.Context, execution *model.JobExecution) error

	// FindLatestJobExecution finds the most recently created JobExecution of a JobInstance.
	// Returns ErrJobExecutionNotFound if the instance has no executions.
	FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error)

	// GetJobExecutionCount returns the number of JobExecutions recorded for a JobInstance.
	GetJobExecutionCount(ctx context.Context, jobInstanceID string) (int, error)

	// SaveStepExecution persists a new StepExecution.
	SaveStepExecution(ctx context.Context, execution *model.StepExecution) error

	// UpdateStepExecution updates the state of an existing StepExecution.
	UpdateStepExecution(ctx context.Context, execution *model.StepExecution) error

	// SaveCheckpointData persists or updates the ExecutionContext associated with a StepExecutionID.
	SaveCheckpointData(ctx context.Context, data *model.CheckpointData) error

	// FindCheckpointData retrieves the ExecutionContext associated with a StepExecutionID.
	// Returns ErrCheckpointDataNotFound if no checkpoint exists.
	FindCheckpointData(ctx context.Context, stepExecutionID string) (*model.CheckpointData, error)

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}
