// Package launcher starts job executions against the metadata store: it
// finds or creates the JobInstance, tracks restart counts, and runs the job
// to completion.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/core/port"
	"github.com/tigerroll/ripple/internal/core/repository"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
	"github.com/tigerroll/ripple/internal/metrics"
)

const moduleLauncher = "job_launcher"

// JobLauncher starts a Job with JobParameters and runs it to completion.
type JobLauncher interface {
	// Launch starts the given Job with JobParameters and returns the finished
	// JobExecution. The returned error reflects a failure of the launch
	// machinery; a failed job is reported through the execution's status.
	Launch(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error)
}

// SimpleJobLauncher implements JobLauncher for single-process execution.
// The job runs synchronously on the caller's goroutine; cancellation comes
// from the caller's context.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	recorder      metrics.MetricRecorder
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a new SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository, recorder metrics.MetricRecorder) *SimpleJobLauncher {
	return &SimpleJobLauncher{jobRepository: repo, recorder: recorder}
}

// Launch runs a job execution.
func (l *SimpleJobLauncher) Launch(ctx context.Context, job port.Job, jobParameters model.JobParameters) (*model.JobExecution, error) {
	const op = "SimpleJobLauncher.Launch"
	jobName := job.JobName()
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, jobParameters.String())

	if err := job.ValidateParameters(jobParameters); err != nil {
		logger.Errorf("Job '%s': JobParameters validation failed: %v", jobName, err)
		return nil, exception.NewBatchError(moduleLauncher, "JobParameters validation error", err, false, false)
	}

	jobInstance, err := l.findOrCreateInstance(ctx, jobName, jobParameters)
	if err != nil {
		return nil, err
	}

	priorExecutions, err := l.jobRepository.GetJobExecutionCount(ctx, jobInstance.ID)
	if err != nil {
		return nil, exception.NewBatchError(op, "Failed to count prior executions", err, false, false)
	}

	if priorExecutions > 0 {
		latest, findErr := l.jobRepository.FindLatestJobExecution(ctx, jobInstance.ID)
		if findErr != nil && !errors.Is(findErr, repository.ErrJobExecutionNotFound) {
			return nil, exception.NewBatchError(op, "Failed to find latest JobExecution", findErr, false, false)
		}
		if latest != nil && !latest.Status.IsFinished() {
			return nil, exception.NewBatchErrorf(moduleLauncher,
				"A running JobExecution (ID: %s, Status: %s) already exists for JobInstance (ID: %s). Concurrent execution is not allowed.",
				latest.ID, latest.Status, jobInstance.ID)
		}
		logger.Infof("JobInstance (ID: %s) has %d prior execution(s); this run is a restart.", jobInstance.ID, priorExecutions)
	}

	jobExecution := model.NewJobExecution(jobInstance.ID, jobName, jobInstance.Parameters)
	jobExecution.RestartCount = priorExecutions

	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return jobExecution, exception.NewBatchError(moduleLauncher, "Failed to save JobExecution initially", err, false, false)
	}
	logger.Debugf("Initially saved JobExecution (ID: %s) to JobRepository (Status: %s).", jobExecution.ID, jobExecution.Status)

	l.recorder.RecordJobStart(ctx, jobExecution)

	runErr := job.Run(ctx, jobExecution, jobParameters)
	if runErr != nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsFailed(runErr)
	}
	if jobExecution.EndTime == nil {
		now := time.Now()
		jobExecution.EndTime = &now
	}

	l.recorder.RecordJobEnd(ctx, jobExecution)

	if err := l.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("Failed to persist final JobExecution state (ID: %s): %v", jobExecution.ID, err)
		if runErr == nil {
			runErr = err
		}
	}

	logger.Infof("Job '%s' finished. Status: %s, ExitStatus: %s", jobName, jobExecution.Status, jobExecution.ExitStatus)
	return jobExecution, runErr
}

// findOrCreateInstance locates the JobInstance for the name and parameter
// hash, creating and saving a new one when none exists.
func (l *SimpleJobLauncher) findOrCreateInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "SimpleJobLauncher.findOrCreateInstance"

	existing, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil && !errors.Is(err, repository.ErrJobInstanceNotFound) {
		return nil, exception.NewBatchError(op, "Failed to search for existing JobInstance", err, false, false)
	}
	if existing != nil {
		logger.Debugf("Found existing JobInstance (ID: %s) for Job '%s'.", existing.ID, jobName)
		return existing, nil
	}

	instance := model.NewJobInstance(jobName, params)
	if err := l.jobRepository.SaveJobInstance(ctx, instance); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("Failed to save new JobInstance for '%s'", jobName), err, false, false)
	}
	logger.Infof("Created and saved new JobInstance (ID: %s, JobName: %s).", instance.ID, jobName)
	return instance, nil
}
