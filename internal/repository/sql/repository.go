// Package sql provides the GORM-backed implementation of the JobRepository
// port, persisting batch execution metadata to a local SQLite file.
package sql

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gorm_logger "gorm.io/gorm/logger"

	model "github.com/tigerroll/ripple/internal/core/model"
	repository "github.com/tigerroll/ripple/internal/core/repository"
	"github.com/tigerroll/ripple/internal/exception"
)

const moduleName = "repository"

// GormJobRepository implements the repository.JobRepository interface on a GORM connection.
type GormJobRepository struct {
	db *gorm.DB
}

var _ repository.JobRepository = (*GormJobRepository)(nil)

// NewGormJobRepository creates a new GormJobRepository on an established connection.
//
// Parameters:
//
//	db: The GORM database handle.
//
// Returns:
//
//	A new instance of repository.JobRepository.
func NewGormJobRepository(db *gorm.DB) repository.JobRepository {
	return &GormJobRepository{db: db}
}

// OpenSQLite opens (creating if necessary) the SQLite metadata database at path.
//
// Parameters:
//
//	path: The SQLite file path, or ":memory:" for an in-memory database.
//
// Returns:
//
//	The GORM database handle and an error if opening fails.
func OpenSQLite(path string) (*gorm.DB, error) {
	gormLogger := gorm_logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gorm_logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gorm_logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to open SQLite metadata database '%s'", path), err, false, false)
	}
	return db, nil
}

// --- JobInstance ---

func (r *GormJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	const op = "GormJobRepository.SaveJobInstance"
	entity := fromDomainJobInstance(instance)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobInstance (ID: %s)", instance.ID), err, false, true)
	}
	return nil
}

func (r *GormJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "GormJobRepository.FindJobInstanceByJobNameAndParameters"
	hash, err := params.Hash()
	if err != nil {
		return nil, exception.NewBatchError(op, "failed to calculate JobParameters hash", err, false, false)
	}

	var entity JobInstanceEntity
	err = r.db.WithContext(ctx).
		Where("job_name = ? AND parameters_hash = ?", jobName, hash).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobInstance for job '%s'", jobName), err, false, true)
	}
	return toDomainJobInstance(&entity), nil
}

// --- JobExecution ---

func (r *GormJobRepository) SaveJobExecution(ctx context.Context, execution *model.JobExecution) error {
	const op = "GormJobRepository.SaveJobExecution"
	entity := fromDomainJobExecution(execution)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobExecution (ID: %s)", execution.ID), err, false, true)
	}
	return nil
}

func (r *GormJobRepository) UpdateJobExecution(ctx context.Context, execution *model.JobExecution) error {
	const op = "GormJobRepository.UpdateJobExecution"
	execution.Version++
	entity := fromDomainJobExecution(execution)

	if err := r.db.WithContext(ctx).Where("id = ?", entity.ID).Save(entity).Error; err != nil {
		execution.Version--
		return exception.NewBatchError(op, fmt.Sprintf("failed to update JobExecution (ID: %s)", execution.ID), err, false, true)
	}
	return nil
}

func (r *GormJobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	const op = "GormJobRepository.FindLatestJobExecution"

	var entity JobExecutionEntity
	err := r.db.WithContext(ctx).
		Where("job_instance_id = ?", jobInstanceID).
		Order("create_time DESC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find latest JobExecution for instance '%s'", jobInstanceID), err, false, true)
	}
	return toDomainJobExecution(&entity), nil
}

func (r *GormJobRepository) GetJobExecutionCount(ctx context.Context, jobInstanceID string) (int, error) {
	const op = "GormJobRepository.GetJobExecutionCount"

	var count int64
	err := r.db.WithContext(ctx).
		Model(&JobExecutionEntity{}).
		Where("job_instance_id = ?", jobInstanceID).
		Count(&count).Error
	if err != nil {
		return 0, exception.NewBatchError(op, fmt.Sprintf("failed to count JobExecutions for instance '%s'", jobInstanceID), err, false, true)
	}
	return int(count), nil
}

// --- StepExecution ---

func (r *GormJobRepository) SaveStepExecution(ctx context.Context, execution *model.StepExecution) error {
	const op = "GormJobRepository.SaveStepExecution"
	entity := fromDomainStepExecution(execution)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save StepExecution (ID: %s)", execution.ID), err, false, true)
	}
	return nil
}

func (r *GormJobRepository) UpdateStepExecution(ctx context.Context, execution *model.StepExecution) error {
	const op = "GormJobRepository.UpdateStepExecution"
	execution.Version++
	entity := fromDomainStepExecution(execution)

	if err := r.db.WithContext(ctx).Where("id = ?", entity.ID).Save(entity).Error; err != nil {
		execution.Version--
		return exception.NewBatchError(op, fmt.Sprintf("failed to update StepExecution (ID: %s)", execution.ID), err, false, true)
	}
	return nil
}

// --- Checkpoint data ---

func (r *GormJobRepository) SaveCheckpointData(ctx context.Context, data *model.CheckpointData) error {
	const op = "GormJobRepository.SaveCheckpointData"
	entity := fromDomainCheckpointData(data)

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "step_execution_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"execution_context", "last_updated"}),
		}).
		Create(entity).Error
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save checkpoint data for StepExecution '%s'", data.StepExecutionID), err, false, true)
	}
	return nil
}

func (r *GormJobRepository) FindCheckpointData(ctx context.Context, stepExecutionID string) (*model.CheckpointData, error) {
	const op = "GormJobRepository.FindCheckpointData"

	var entity CheckpointDataEntity
	err := r.db.WithContext(ctx).
		Where("step_execution_id = ?", stepExecutionID).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrCheckpointDataNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find checkpoint data for StepExecution '%s'", stepExecutionID), err, false, true)
	}
	return toDomainCheckpointData(&entity), nil
}

// Close releases the underlying database connection.
func (r *GormJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to obtain underlying sql.DB for close", err, false, false)
	}
	return sqlDB.Close()
}
