// Package listener provides logging implementations of the execution
// listener interfaces.
package listener

import (
	"context"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/core/port"
	"github.com/tigerroll/ripple/internal/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() port.JobExecutionListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %+v", jobExecution.JobName, jobExecution.ID, jobExecution.Parameters)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s", jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus)
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() port.StepExecutionListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s, Read: %d, Write: %d, Filter: %d",
		stepExecution.StepName, stepExecution.Status, stepExecution.ExitStatus, stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount)
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Skip Listener ---

type LoggingSkipListener struct{}

func NewLoggingSkipListener() port.SkipListener {
	return &LoggingSkipListener{}
}

func (l *LoggingSkipListener) OnSkipRead(ctx context.Context, err error) {
	logger.Warnf("SkipListener: OnSkipRead - Skipping item due to error: %v", err)
}

func (l *LoggingSkipListener) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: OnSkipProcess - Skipping item: %+v, Error: %v", item, err)
}

func (l *LoggingSkipListener) OnSkipWrite(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: OnSkipWrite - Skipping item: %+v, Error: %v", item, err)
}

var _ port.SkipListener = (*LoggingSkipListener)(nil)

// --- Retry Item Listener ---

type LoggingRetryItemListener struct{}

func NewLoggingRetryItemListener() port.RetryItemListener {
	return &LoggingRetryItemListener{}
}

func (l *LoggingRetryItemListener) OnRetryRead(ctx context.Context, err error) {
	logger.Warnf("RetryItemListener: OnRetryRead - Retrying read operation due to error: %v", err)
}

func (l *LoggingRetryItemListener) OnRetryProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("RetryItemListener: OnRetryProcess - Retrying process operation for item: %+v, Error: %v", item, err)
}

func (l *LoggingRetryItemListener) OnRetryWrite(ctx context.Context, items []interface{}, err error) {
	logger.Warnf("RetryItemListener: OnRetryWrite - Retrying write operation for %d items, Error: %v", len(items), err)
}

var _ port.RetryItemListener = (*LoggingRetryItemListener)(nil)
