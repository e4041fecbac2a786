package sql

import (
	model "github.com/tigerroll/ripple/internal/core/model"
)

// --- Mapper functions ---

func fromDomainJobInstance(ji *model.JobInstance) *JobInstanceEntity {
	if ji == nil {
		return nil
	}
	return &JobInstanceEntity{
		ID:             ji.ID,
		JobName:        ji.JobName,
		Parameters:     ji.Parameters,
		CreateTime:     ji.CreateTime,
		Version:        ji.Version,
		ParametersHash: ji.ParametersHash,
	}
}

func toDomainJobInstance(entity *JobInstanceEntity) *model.JobInstance {
	if entity == nil {
		return nil
	}
	return &model.JobInstance{
		ID:             entity.ID,
		JobName:        entity.JobName,
		Parameters:     entity.Parameters,
		CreateTime:     entity.CreateTime,
		Version:        entity.Version,
		ParametersHash: entity.ParametersHash,
	}
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	if je == nil {
		return nil
	}
	return &JobExecutionEntity{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		StartTime:        je.StartTime,
		EndTime:          je.EndTime,
		Status:           je.Status,
		ExitStatus:       je.ExitStatus,
		Failures:         je.Failures,
		Version:          je.Version,
		CreateTime:       je.CreateTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext,
		RestartCount:     je.RestartCount,
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	if entity == nil {
		return nil
	}
	return &model.JobExecution{
		ID:               entity.ID,
		JobInstanceID:    entity.JobInstanceID,
		JobName:          entity.JobName,
		Parameters:       entity.Parameters,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		Failures:         entity.Failures,
		Version:          entity.Version,
		CreateTime:       entity.CreateTime,
		LastUpdated:      entity.LastUpdated,
		ExecutionContext: entity.ExecutionContext,
		RestartCount:     entity.RestartCount,
		StepExecutions:   make([]*model.StepExecution, 0),
	}
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	if se == nil {
		return nil
	}
	return &StepExecutionEntity{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecutionID:   se.JobExecutionID,
		StartTime:        se.StartTime,
		EndTime:          se.EndTime,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		Failures:         se.Failures,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		CommitCount:      se.CommitCount,
		FilterCount:      se.FilterCount,
		SkipReadCount:    se.SkipReadCount,
		SkipProcessCount: se.SkipProcessCount,
		SkipWriteCount:   se.SkipWriteCount,
		ExecutionContext: se.ExecutionContext,
		LastUpdated:      se.LastUpdated,
		Version:          se.Version,
	}
}

func fromDomainCheckpointData(cd *model.CheckpointData) *CheckpointDataEntity {
	if cd == nil {
		return nil
	}
	return &CheckpointDataEntity{
		StepExecutionID:  cd.StepExecutionID,
		ExecutionContext: cd.ExecutionContext,
		LastUpdated:      cd.LastUpdated,
	}
}

func toDomainCheckpointData(entity *CheckpointDataEntity) *model.CheckpointData {
	if entity == nil {
		return nil
	}
	return &model.CheckpointData{
		StepExecutionID:  entity.StepExecutionID,
		ExecutionContext: entity.ExecutionContext,
		LastUpdated:      entity.LastUpdated,
	}
}
