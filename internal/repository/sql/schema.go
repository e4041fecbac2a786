package sql

import (
	"time"

	model "github.com/tigerroll/ripple/internal/core/model"
)

// JobInstanceEntity is a schema model used for persistence.
type JobInstanceEntity struct {
	ID             string
	JobName        string
	Parameters     model.JobParameters
	CreateTime     time.Time
	Version        int
	ParametersHash string
}

func (JobInstanceEntity) TableName() string {
	return "batch_job_instance"
}

// JobExecutionEntity is a schema model used for persistence.
type JobExecutionEntity struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       model.JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus
	ExitStatus       model.ExitStatus
	Failures         model.FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext model.ExecutionContext
	RestartCount     int
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is a schema model used for persistence.
type StepExecutionEntity struct {
	ID               string
	StepName         string
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.JobStatus
	ExitStatus       model.ExitStatus
	Failures         model.FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext model.ExecutionContext
	LastUpdated      time.Time
	Version          int
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}

// CheckpointDataEntity is a schema model used for persistence.
type CheckpointDataEntity struct {
	StepExecutionID  string
	ExecutionContext model.ExecutionContext
	LastUpdated      time.Time
}

func (CheckpointDataEntity) TableName() string {
	return "batch_checkpoint_data"
}
