// Package app assembles the pipeline with uber-fx: configuration, metadata
// store, metrics, completion backend, and the record-analysis job.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/ripple/internal/completion"
	"github.com/tigerroll/ripple/internal/config"
	"github.com/tigerroll/ripple/internal/configbinder"
	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/core/repository"
	"github.com/tigerroll/ripple/internal/domain"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/export"
	"github.com/tigerroll/ripple/internal/input"
	"github.com/tigerroll/ripple/internal/job"
	"github.com/tigerroll/ripple/internal/launcher"
	"github.com/tigerroll/ripple/internal/listener"
	"github.com/tigerroll/ripple/internal/logger"
	"github.com/tigerroll/ripple/internal/metrics"
	"github.com/tigerroll/ripple/internal/migration"
	"github.com/tigerroll/ripple/internal/recordstore"
	sqlrepo "github.com/tigerroll/ripple/internal/repository/sql"
	"github.com/tigerroll/ripple/internal/resume"
	"github.com/tigerroll/ripple/internal/step/item"
	"github.com/tigerroll/ripple/internal/step/processor"
	"github.com/tigerroll/ripple/internal/step/reader"
	"github.com/tigerroll/ripple/internal/step/retry"
	"github.com/tigerroll/ripple/internal/step/skip"
	"github.com/tigerroll/ripple/internal/step/writer"
	"github.com/tigerroll/ripple/internal/storage/local"
)

const moduleApp = "app"

// stepName is the name of the single analysis step.
const stepName = "record-analysis-step"

// Options carries the command line inputs of one run.
type Options struct {
	// Object is the record type to query.
	Object string
	// Fields are the field names to analyze, in output order.
	Fields []string
	// Prompt is the instruction applied to every record.
	Prompt string
	// InputPath is the filter value CSV.
	InputPath string
	// OutputPath is the outcome CSV appended across runs.
	OutputPath string
	// Backend overrides the configured completion backend when set.
	Backend string
	// ExportParquet enables the Parquet artifact export after a completed run.
	ExportParquet bool
	// EnvFilePath is the .env file loaded before configuration.
	EnvFilePath string
	// BatchOverrides are per-run batch settings bound over the loaded
	// configuration, keyed by the batch YAML field names.
	BatchOverrides map[string]string
}

// RunApplication sets up and runs the pipeline with uber-fx.
//
// Returns:
//
//	int: The process exit code. 0 for COMPLETED and NO_OP runs, 1 otherwise.
func RunApplication(appCtx context.Context, opts Options, embeddedConfig config.EmbeddedConfig) int {
	cfg, err := config.LoadConfig(opts.EnvFilePath, embeddedConfig)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if opts.Backend != "" {
		cfg.Ripple.Completion.Backend = opts.Backend
	}
	if err := configbinder.BindProperties(opts.BatchOverrides, &cfg.Ripple.Batch); err != nil {
		logger.Fatalf("Failed to apply batch setting overrides: %v", err)
	}

	exitCode := 1

	fxApp := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Supply(opts),
		fx.Supply(fx.Annotate(appCtx, fx.As(new(context.Context)))),
		fx.Provide(
			newGormDB,
			newJobRepository,
			newMetricRecorder,
			newCompletionService,
			newJobLauncher,
		),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, deps pipelineDeps) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						defer func() {
							if r := recover(); r != nil {
								logger.Errorf("Panic recovered in pipeline execution: %v", r)
								exitCode = 1
							}
							if err := shutdowner.Shutdown(); err != nil {
								logger.Errorf("Failed to shutdown application: %v", err)
							}
						}()
						exitCode = runPipeline(appCtx, cfg, opts, deps)
					}()
					return nil
				},
				OnStop: func(context.Context) error {
					logger.Infof("Application is shutting down.")
					return deps.JobRepository.Close()
				},
			})
		}),
	)

	fxApp.Run()
	if fxApp.Err() != nil {
		logger.Errorf("Application run failed: %v", fxApp.Err())
		return 1
	}
	return exitCode
}

// pipelineDeps bundles the fx-provided dependencies of the pipeline run.
type pipelineDeps struct {
	fx.In

	JobRepository repository.JobRepository
	Recorder      metrics.MetricRecorder
	Completion    completion.Service
	Launcher      launcher.JobLauncher
}

// newGormDB opens the SQLite metadata store and applies schema migrations.
func newGormDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := sqlrepo.OpenSQLite(cfg.Ripple.Metadata.Database)
	if err != nil {
		return nil, err
	}
	if err := migration.NewMigrator(db).Up(); err != nil {
		return nil, err
	}
	return db, nil
}

// newJobRepository builds the GORM-backed JobRepository.
func newJobRepository(db *gorm.DB) repository.JobRepository {
	return sqlrepo.NewGormJobRepository(db)
}

// newMetricRecorder builds the Prometheus recorder.
func newMetricRecorder() metrics.MetricRecorder {
	return metrics.NewPrometheusRecorder()
}

// newCompletionService selects the completion backend from configuration.
func newCompletionService(cfg *config.Config) (completion.Service, error) {
	cc := cfg.Ripple.Completion
	switch strings.ToLower(cc.Backend) {
	case "gemini":
		return completion.NewGeminiService(context.Background(), cc.GeminiAPIKey, cc.GeminiModel)
	case "http", "":
		return completion.NewHTTPService(cc.BaseURL, cc.Model, time.Duration(cc.TimeoutSeconds)*time.Second), nil
	default:
		return nil, exception.NewBatchErrorf(moduleApp, "Unknown completion backend '%s'", cc.Backend)
	}
}

// newJobLauncher builds the SimpleJobLauncher.
func newJobLauncher(repo repository.JobRepository, recorder metrics.MetricRecorder) launcher.JobLauncher {
	return launcher.NewSimpleJobLauncher(repo, recorder)
}

// runPipeline executes one full run: parse input, resume, query, analyze,
// append outcomes, and optionally export. It returns the process exit code.
func runPipeline(ctx context.Context, cfg *config.Config, opts Options, deps pipelineDeps) int {
	defer pushMetrics(cfg, deps.Recorder)

	spec, err := input.ParseFilterFile(opts.InputPath)
	if err != nil {
		logger.Errorf("Failed to parse input file: %v", err)
		return 1
	}

	processed := resume.LoadProcessed(opts.OutputPath, spec.FieldName)
	pending := resume.FilterPending(spec.Values, processed)
	logger.Infof("Input has %d value(s); %d already processed; %d pending.", len(spec.Values), len(processed), len(pending))

	params := buildJobParameters(opts)

	if len(pending) == 0 {
		if err := recordNoOp(ctx, cfg, deps, params); err != nil {
			logger.Warnf("Failed to record NO_OP execution: %v", err)
		}
		logger.Infof("Nothing to do: every filter value already has an outcome. Exiting.")
		return 0
	}

	storeTimeout := time.Duration(cfg.Ripple.Store.TimeoutSeconds) * time.Second
	authenticator := recordstore.NewAuthenticator(
		cfg.Ripple.Store.AuthURL,
		cfg.Ripple.Store.ClientID,
		cfg.Ripple.Store.ClientSecret,
		storeTimeout,
	)
	session, err := authenticator.Authenticate(ctx)
	if err != nil {
		logger.Errorf("Authentication against the record store failed: %v", err)
		return 1
	}
	client := recordstore.NewClient(session, storeTimeout)

	labels, err := client.DescribeFields(ctx, opts.Object, opts.Fields)
	if err != nil {
		logger.Errorf("Field metadata lookup failed: %v", err)
		return 1
	}
	fieldSet := domain.NewFieldSet(opts.Fields, labels)

	batchCfg := cfg.Ripple.Batch
	storeReader := reader.NewRecordStoreReader(client, reader.Config{
		Object:      opts.Object,
		Fields:      opts.Fields,
		FilterField: spec.FieldName,
		ChunkSize:   batchCfg.ChunkSize,
		PageSize:    batchCfg.PageSize,
		MaxPages:    batchCfg.MaxPages,
		ChunkDelay:  time.Duration(batchCfg.ChunkDelaySeconds) * time.Second,
	}, pending, deps.Recorder, stepName)

	completionProcessor := processor.NewCompletionProcessor(
		deps.Completion, fieldSet, opts.Prompt, spec.FieldName, deps.Recorder, stepName)

	outcomeWriter := writer.NewOutcomeCSVWriter(opts.OutputPath, spec.FieldName)

	retryPolicy := retry.NewPolicy(
		batchCfg.ItemRetry.MaxAttempts,
		time.Duration(batchCfg.ItemRetry.InitialInterval)*time.Millisecond,
		batchCfg.ItemRetry.RetryableExceptions,
	)
	skipPolicy := skip.NewPolicy(batchCfg.ItemSkip.SkipLimit, batchCfg.ItemSkip.SkippableExceptions)

	chunkStep := item.NewChunkStep[*domain.Record, *domain.Outcome](
		stepName,
		storeReader,
		completionProcessor,
		outcomeWriter,
		batchCfg.CommitInterval,
		deps.JobRepository,
		retryPolicy,
		skipPolicy,
		deps.Recorder,
	)
	chunkStep.RegisterStepListener(listener.NewLoggingStepListener())
	chunkStep.RegisterSkipListener(listener.NewLoggingSkipListener())
	chunkStep.RegisterRetryListener(listener.NewLoggingRetryItemListener())

	analysisJob := job.NewRecordAnalysisJob(batchCfg.JobName, chunkStep, deps.JobRepository)
	analysisJob.RegisterJobListener(listener.NewLoggingJobListener())

	jobExecution, runErr := deps.Launcher.Launch(ctx, analysisJob, params)
	if runErr != nil {
		logger.Errorf("Job run failed: %v", runErr)
	}
	if jobExecution == nil || jobExecution.Status != model.BatchStatusCompleted {
		return 1
	}

	if opts.ExportParquet {
		if err := exportArtifact(ctx, cfg, opts.OutputPath); err != nil {
			logger.Errorf("Parquet export failed: %v", err)
			return 1
		}
	}
	return 0
}

// buildJobParameters derives the identifying parameters of a run.
func buildJobParameters(opts Options) model.JobParameters {
	params := model.NewJobParameters()
	params.Put("object", opts.Object)
	params.Put("fields", strings.Join(opts.Fields, ","))
	params.Put("input", opts.InputPath)
	params.Put("output", opts.OutputPath)
	return params
}

// recordNoOp persists a JobExecution with the NO_OP exit status so the run
// shows up in job history even though no step ran.
func recordNoOp(ctx context.Context, cfg *config.Config, deps pipelineDeps, params model.JobParameters) error {
	jobName := cfg.Ripple.Batch.JobName

	instance, err := deps.JobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil && !errors.Is(err, repository.ErrJobInstanceNotFound) {
		return err
	}
	if instance == nil {
		instance = model.NewJobInstance(jobName, params)
		if err := deps.JobRepository.SaveJobInstance(ctx, instance); err != nil {
			return err
		}
	}

	execution := model.NewJobExecution(instance.ID, jobName, params)
	execution.MarkAsNoOp()
	if err := deps.JobRepository.SaveJobExecution(ctx, execution); err != nil {
		return err
	}
	deps.Recorder.RecordJobEnd(ctx, execution)
	return nil
}

// exportArtifact converts the outcome CSV into a Parquet artifact under the
// configured export directory.
func exportArtifact(ctx context.Context, cfg *config.Config, outputPath string) error {
	conn, err := local.NewLocalAdapter(cfg.Ripple.Export.BaseDir, "export")
	if err != nil {
		return err
	}
	defer conn.Close()

	exporter := export.NewParquetExporter(conn, "exports")
	_, err = exporter.Export(ctx, outputPath)
	return err
}

// pushMetrics pushes collected metrics when a Pushgateway is configured.
func pushMetrics(cfg *config.Config, recorder metrics.MetricRecorder) {
	if prom, ok := recorder.(*metrics.PrometheusRecorder); ok {
		prom.Push(cfg.Ripple.Metrics.PushgatewayURL, cfg.Ripple.Batch.JobName)
	}
}
