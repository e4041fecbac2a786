// Package job defines the record-analysis job: a single chunk-oriented step
// that fetches records, runs completions, and appends outcomes.
package job

import (
	"context"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/core/port"
	"github.com/tigerroll/ripple/internal/core/repository"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
)

// RecordAnalysisJob runs the analysis step and manages the JobExecution
// lifecycle around it.
type RecordAnalysisJob struct {
	name          string
	step          port.Step
	jobRepository repository.JobRepository
	jobListeners  []port.JobExecutionListener
}

var _ port.Job = (*RecordAnalysisJob)(nil)

// NewRecordAnalysisJob creates the job from its single step.
//
// Parameters:
//
//	name: The job name recorded in the metadata store.
//	step: The chunk-oriented analysis step.
//	repo: The metadata store.
func NewRecordAnalysisJob(name string, step port.Step, repo repository.JobRepository) *RecordAnalysisJob {
	return &RecordAnalysisJob{
		name:          name,
		step:          step,
		jobRepository: repo,
	}
}

// RegisterJobListener adds a JobExecutionListener.
func (j *RecordAnalysisJob) RegisterJobListener(l port.JobExecutionListener) {
	j.jobListeners = append(j.jobListeners, l)
}

// JobName returns the logical name of the job.
func (j *RecordAnalysisJob) JobName() string {
	return j.name
}

// ValidateParameters validates job parameters before execution. The required
// parameters are the object type, the field list, and the input path.
func (j *RecordAnalysisJob) ValidateParameters(params model.JobParameters) error {
	for _, key := range []string{"object", "fields", "input"} {
		if value, ok := params.GetString(key); !ok || value == "" {
			return exception.NewBatchErrorf(j.name, "Missing required job parameter '%s'", key)
		}
	}
	return nil
}

// Run executes the job flow: mark started, run the step, settle the final
// status from the step outcome.
func (j *RecordAnalysisJob) Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error {
	logger.Infof("Job '%s' starting (Execution ID: %s).", j.name, jobExecution.ID)

	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
	defer func() {
		for _, l := range j.jobListeners {
			l.AfterJob(ctx, jobExecution)
		}
	}()

	jobExecution.MarkAsStarted()
	if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return exception.NewBatchError(j.name, "Failed to update JobExecution status to STARTED", err, false, false)
	}

	stepExecution := model.NewStepExecution(model.NewID(), jobExecution, j.step.StepName())
	jobExecution.AddStepExecution(stepExecution)
	if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(j.name, "Failed to save StepExecution", err, false, false)
	}

	stepErr := j.step.Execute(ctx, jobExecution, stepExecution)
	if stepErr != nil {
		if ctx.Err() != nil {
			jobExecution.AddFailureException(stepErr)
			jobExecution.MarkAsStopped()
			logger.Warnf("Job '%s' stopped by request.", j.name)
		} else {
			jobExecution.MarkAsFailed(stepErr)
		}
		return stepErr
	}

	jobExecution.MarkAsCompleted()
	logger.Infof("Job '%s' completed. Read: %d, Write: %d, Filter: %d",
		j.name, stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount)
	return nil
}
