package launcher_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/core/repository"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/launcher"
	"github.com/tigerroll/ripple/internal/metrics"
	"github.com/tigerroll/ripple/internal/migration"
	reposql "github.com/tigerroll/ripple/internal/repository/sql"
)

// stubJob marks its execution finished according to runErr, mirroring how a
// real job settles its own status.
type stubJob struct {
	name       string
	runErr     error
	runCount   int
	settleDone bool
}

func (j *stubJob) JobName() string { return j.name }

func (j *stubJob) ValidateParameters(params model.JobParameters) error {
	if v, ok := params.GetString("input"); !ok || v == "" {
		return errors.New("missing required job parameter 'input'")
	}
	return nil
}

func (j *stubJob) Run(ctx context.Context, jobExecution *model.JobExecution, params model.JobParameters) error {
	j.runCount++
	jobExecution.MarkAsStarted()
	if j.runErr != nil {
		if j.settleDone {
			jobExecution.MarkAsFailed(j.runErr)
		}
		return j.runErr
	}
	jobExecution.MarkAsCompleted()
	return nil
}

func newTestRepository(t *testing.T) repository.JobRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := reposql.OpenSQLite(dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.NewMigrator(db).Up())

	repo := reposql.NewGormJobRepository(db)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func inputParams(path string) model.JobParameters {
	params := model.NewJobParameters()
	params.Put("input", path)
	return params
}

func TestSimpleJobLauncher_Launch(t *testing.T) {
	repo := newTestRepository(t)
	l := launcher.NewSimpleJobLauncher(repo, metrics.NewNoopRecorder())

	job := &stubJob{name: "record-analysis"}
	execution, err := l.Launch(context.Background(), job, inputParams("input.csv"))
	require.NoError(t, err)
	require.NotNil(t, execution)

	assert.Equal(t, 1, job.runCount)
	assert.Equal(t, model.BatchStatusCompleted, execution.Status)
	assert.Equal(t, 0, execution.RestartCount)
	require.NotNil(t, execution.EndTime)

	latest, err := repo.FindLatestJobExecution(context.Background(), execution.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, latest.ID)
	assert.Equal(t, model.BatchStatusCompleted, latest.Status)
}

func TestSimpleJobLauncher_RejectsInvalidParameters(t *testing.T) {
	repo := newTestRepository(t)
	l := launcher.NewSimpleJobLauncher(repo, metrics.NewNoopRecorder())

	job := &stubJob{name: "record-analysis"}
	_, err := l.Launch(context.Background(), job, model.NewJobParameters())
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
	assert.Equal(t, 0, job.runCount)
}

func TestSimpleJobLauncher_RestartReusesInstanceAndCountsExecutions(t *testing.T) {
	repo := newTestRepository(t)
	l := launcher.NewSimpleJobLauncher(repo, metrics.NewNoopRecorder())
	params := inputParams("input.csv")

	failing := &stubJob{name: "record-analysis", runErr: errors.New("completion backend down")}
	first, err := l.Launch(context.Background(), failing, params)
	require.Error(t, err)
	require.NotNil(t, first)
	assert.Equal(t, model.BatchStatusFailed, first.Status)
	assert.Equal(t, 0, first.RestartCount)

	succeeding := &stubJob{name: "record-analysis"}
	second, err := l.Launch(context.Background(), succeeding, params)
	require.NoError(t, err)
	assert.Equal(t, first.JobInstanceID, second.JobInstanceID, "same name and parameters reuse the JobInstance")
	assert.Equal(t, 1, second.RestartCount)
	assert.Equal(t, model.BatchStatusCompleted, second.Status)
}

func TestSimpleJobLauncher_DifferentParametersGetNewInstance(t *testing.T) {
	repo := newTestRepository(t)
	l := launcher.NewSimpleJobLauncher(repo, metrics.NewNoopRecorder())

	first, err := l.Launch(context.Background(), &stubJob{name: "record-analysis"}, inputParams("a.csv"))
	require.NoError(t, err)
	second, err := l.Launch(context.Background(), &stubJob{name: "record-analysis"}, inputParams("b.csv"))
	require.NoError(t, err)

	assert.NotEqual(t, first.JobInstanceID, second.JobInstanceID)
	assert.Equal(t, 0, second.RestartCount)
}

func TestSimpleJobLauncher_RejectsConcurrentExecution(t *testing.T) {
	repo := newTestRepository(t)
	l := launcher.NewSimpleJobLauncher(repo, metrics.NewNoopRecorder())
	params := inputParams("input.csv")

	// A job that never settles its status leaves the execution unfinished,
	// the same shape a crashed process leaves behind.
	hung := &stubJob{name: "record-analysis", runErr: errors.New("killed"), settleDone: false}
	first, err := l.Launch(context.Background(), hung, params)
	require.Error(t, err)
	require.NotNil(t, first)

	// The launcher marks an unfinished failed run as FAILED itself, so undo
	// that to simulate a run that is still live in the metadata store.
	first.Status = model.BatchStatusStarted
	require.NoError(t, repo.UpdateJobExecution(context.Background(), first))

	_, err = l.Launch(context.Background(), &stubJob{name: "record-analysis"}, params)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Concurrent execution is not allowed")
}

func TestSimpleJobLauncher_FailedRunIsMarkedFailed(t *testing.T) {
	repo := newTestRepository(t)
	l := launcher.NewSimpleJobLauncher(repo, metrics.NewNoopRecorder())

	// The job returns an error without settling its own status; the launcher
	// settles it.
	job := &stubJob{name: "record-analysis", runErr: errors.New("step blew up")}
	execution, err := l.Launch(context.Background(), job, inputParams("input.csv"))
	require.Error(t, err)
	require.NotNil(t, execution)
	assert.Equal(t, model.BatchStatusFailed, execution.Status)
	assert.Equal(t, model.ExitStatusFailed, execution.ExitStatus)
	require.NotEmpty(t, execution.Failures)
}
