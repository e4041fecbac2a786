// Package item implements the chunk-oriented step: items flow read, process,
// write one at a time with item-level retry and skip, and a checkpoint is
// saved every commit interval.
package item

import (
	"context"
	"errors"
	"io"
	"time"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/core/port"
	"github.com/tigerroll/ripple/internal/core/repository"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
	"github.com/tigerroll/ripple/internal/metrics"
	"github.com/tigerroll/ripple/internal/step/retry"
	"github.com/tigerroll/ripple/internal/step/skip"
)

// ChunkStep is a chunk-oriented implementation of port.Step.
//
// Items are read and processed one at a time, and each processed item is
// written to the sink immediately, so an interruption never loses a finished
// outcome. Every commitInterval written items a checkpoint is saved. The sink
// is append-only, so there is no transaction to roll back: a failure between
// write and checkpoint at worst rewrites rows that output-based resume drops
// on the next run.
type ChunkStep[I any, O any] struct {
	name           string
	reader         port.ItemReader[I]
	processor      port.ItemProcessor[I, O]
	writer         port.ItemWriter[O]
	commitInterval int
	jobRepository  repository.JobRepository

	retryPolicy retry.RetryPolicy
	skipPolicy  skip.SkipPolicy

	stepListeners  []port.StepExecutionListener
	skipListeners  []port.SkipListener
	retryListeners []port.RetryItemListener

	recorder metrics.MetricRecorder
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep creates a chunk-oriented step.
//
// Parameters:
//
//	name: The step name.
//	reader: The item source.
//	processor: The item transformation.
//	writer: The item sink.
//	commitInterval: The number of written items between checkpoints.
//	jobRepository: The metadata store for checkpoints and step state.
//	retryPolicy: The item-level retry policy.
//	skipPolicy: The item-level skip policy.
//	recorder: The metric recorder.
func NewChunkStep[I any, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	commitInterval int,
	jobRepository repository.JobRepository,
	retryPolicy retry.RetryPolicy,
	skipPolicy skip.SkipPolicy,
	recorder metrics.MetricRecorder,
) *ChunkStep[I, O] {
	if commitInterval <= 0 {
		commitInterval = 1
	}
	return &ChunkStep[I, O]{
		name:           name,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		commitInterval: commitInterval,
		jobRepository:  jobRepository,
		retryPolicy:    retryPolicy,
		skipPolicy:     skipPolicy,
		recorder:       recorder,
	}
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// RegisterStepListener adds a StepExecutionListener.
func (s *ChunkStep[I, O]) RegisterStepListener(l port.StepExecutionListener) {
	s.stepListeners = append(s.stepListeners, l)
}

// RegisterSkipListener adds a SkipListener.
func (s *ChunkStep[I, O]) RegisterSkipListener(l port.SkipListener) {
	s.skipListeners = append(s.skipListeners, l)
}

// RegisterRetryListener adds a RetryItemListener.
func (s *ChunkStep[I, O]) RegisterRetryListener(l port.RetryItemListener) {
	s.retryListeners = append(s.retryListeners, l)
}

// Execute runs the chunk-oriented step logic.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	logger.Infof("ChunkStep '%s' executing.", s.name)

	stepExecution.MarkAsStarted()
	s.recorder.RecordStepStart(ctx, stepExecution)
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(s.name, "Failed to update StepExecution status to STARTED", err, false, false)
	}

	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	checkpointEC, err := s.loadCheckpoint(ctx, stepExecution)
	if err != nil {
		return err
	}

	if err := s.reader.Open(ctx, checkpointEC); err != nil {
		return exception.NewBatchError(s.name, "Failed to open ItemReader", err, false, false)
	}
	if err := s.writer.Open(ctx, checkpointEC); err != nil {
		s.reader.Close(ctx)
		return exception.NewBatchError(s.name, "Failed to open ItemWriter", err, false, false)
	}

	stepError := s.runChunkLoop(ctx, stepExecution)

	if closeErr := s.reader.Close(ctx); closeErr != nil {
		logger.Warnf("ChunkStep '%s': Failed to close ItemReader: %v", s.name, closeErr)
		if stepError == nil {
			stepError = closeErr
		}
	}
	if closeErr := s.writer.Close(ctx); closeErr != nil {
		logger.Warnf("ChunkStep '%s': Failed to close ItemWriter: %v", s.name, closeErr)
		if stepError == nil {
			stepError = closeErr
		}
	}

	if finalEC, ecErr := s.reader.GetExecutionContext(ctx); ecErr == nil {
		stepExecution.ExecutionContext = finalEC
	}

	if stepError != nil {
		stepExecution.MarkAsFailed(stepError)
	} else {
		stepExecution.MarkAsCompleted()
	}
	s.recorder.RecordStepEnd(ctx, stepExecution)

	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}

	if updateErr := s.jobRepository.UpdateStepExecution(ctx, stepExecution); updateErr != nil {
		logger.Errorf("ChunkStep '%s': Failed to update final StepExecution state: %v", s.name, updateErr)
		if stepError == nil {
			stepError = updateErr
		}
	}

	logger.Infof("ChunkStep '%s' finished. ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return stepError
}

// runChunkLoop drives the read/process/write cycle until the reader is
// exhausted, the context is cancelled, or an unrecoverable error occurs.
func (s *ChunkStep[I, O]) runChunkLoop(ctx context.Context, stepExecution *model.StepExecution) error {
	var zero O
	uncommitted := 0

	for {
		select {
		case <-ctx.Done():
			// Stop at an item boundary; every written outcome is already on disk.
			logger.Warnf("ChunkStep '%s': Stop requested, ending at item boundary.", s.name)
			if uncommitted > 0 {
				s.commitChunk(ctx, stepExecution, uncommitted)
			}
			return exception.NewBatchError(s.name, "Step stopped by request", ctx.Err(), false, false)
		default:
		}

		item, readErr := s.readItem(ctx, stepExecution)
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, port.ErrNoMoreItems) {
				break
			}
			if errors.Is(readErr, errItemSkipped) {
				continue
			}
			return readErr
		}
		stepExecution.ReadCount++
		s.recorder.RecordItemRead(ctx, s.name)

		out, processErr := s.processItem(ctx, stepExecution, item)
		if processErr != nil {
			if errors.Is(processErr, errItemSkipped) {
				continue
			}
			return processErr
		}
		s.recorder.RecordItemProcess(ctx, s.name)

		if any(out) == any(zero) {
			stepExecution.FilterCount++
			s.recorder.RecordItemFilter(ctx, s.name)
			continue
		}

		if err := s.writeItem(ctx, stepExecution, out); err != nil {
			return err
		}
		uncommitted++
		if uncommitted >= s.commitInterval {
			s.commitChunk(ctx, stepExecution, uncommitted)
			uncommitted = 0
		}
	}

	if uncommitted > 0 {
		s.commitChunk(ctx, stepExecution, uncommitted)
	}
	return nil
}

// errItemSkipped marks an item dropped by the skip policy inside the loop.
var errItemSkipped = errors.New("item skipped")

// readItem reads one item, applying the retry and skip policies.
func (s *ChunkStep[I, O]) readItem(ctx context.Context, stepExecution *model.StepExecution) (I, error) {
	var zero I
	attempts := 0
	for {
		item, err := s.reader.Read(ctx)
		if err == nil {
			return item, nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, port.ErrNoMoreItems) {
			return zero, err
		}

		if s.retryPolicy.ShouldRetry(err) && attempts < s.retryPolicy.GetMaxAttempts() {
			attempts++
			logger.Warnf("ChunkStep '%s': Item read failed (Attempt %d/%d). Retrying: %v", s.name, attempts, s.retryPolicy.GetMaxAttempts(), err)
			s.notifyRetryRead(ctx, err)
			if waitErr := s.backoff(ctx, attempts); waitErr != nil {
				return zero, waitErr
			}
			continue
		}

		if s.skipPolicy.ShouldSkip(err) {
			s.skipPolicy.IncrementSkipCount()
			stepExecution.SkipReadCount++
			stepExecution.AddFailureException(err)
			logger.Warnf("ChunkStep '%s': Item read skipped (Skip Count: %d/%d): %v", s.name, s.skipPolicy.GetSkipCount(), s.skipPolicy.GetSkipLimit(), err)
			s.notifySkipRead(ctx, err)
			return zero, errItemSkipped
		}

		return zero, exception.NewBatchError(s.name, "Item read failed (Fatal or limit reached)", err, false, false)
	}
}

// processItem processes one item, applying the retry and skip policies.
func (s *ChunkStep[I, O]) processItem(ctx context.Context, stepExecution *model.StepExecution, item I) (O, error) {
	var zero O
	attempts := 0
	for {
		out, err := s.processor.Process(ctx, item)
		if err == nil {
			return out, nil
		}

		if s.retryPolicy.ShouldRetry(err) && attempts < s.retryPolicy.GetMaxAttempts() {
			attempts++
			logger.Warnf("ChunkStep '%s': Item process failed (Attempt %d/%d). Retrying: %v", s.name, attempts, s.retryPolicy.GetMaxAttempts(), err)
			s.notifyRetryProcess(ctx, item, err)
			if waitErr := s.backoff(ctx, attempts); waitErr != nil {
				return zero, waitErr
			}
			continue
		}

		if s.skipPolicy.ShouldSkip(err) {
			s.skipPolicy.IncrementSkipCount()
			stepExecution.SkipProcessCount++
			stepExecution.AddFailureException(err)
			logger.Warnf("ChunkStep '%s': Item process skipped (Skip Count: %d/%d): %v", s.name, s.skipPolicy.GetSkipCount(), s.skipPolicy.GetSkipLimit(), err)
			s.notifySkipProcess(ctx, item, err)
			return zero, errItemSkipped
		}

		return zero, exception.NewBatchError(s.name, "Item process failed (Fatal or limit reached)", err, false, false)
	}
}

// writeItem appends one processed item to the sink, retrying on transient
// failures. Each outcome reaches the sink on its own, directly after its
// record finishes, so an interrupted run never re-sends a completed record.
func (s *ChunkStep[I, O]) writeItem(ctx context.Context, stepExecution *model.StepExecution, out O) error {
	single := []O{out}
	attempts := 0
	for {
		err := s.writer.Write(ctx, single)
		if err == nil {
			break
		}

		if s.retryPolicy.ShouldRetry(err) && attempts < s.retryPolicy.GetMaxAttempts() {
			attempts++
			logger.Warnf("ChunkStep '%s': Item write failed (Attempt %d/%d). Retrying: %v", s.name, attempts, s.retryPolicy.GetMaxAttempts(), err)
			s.notifyRetryWrite(ctx, single, err)
			if waitErr := s.backoff(ctx, attempts); waitErr != nil {
				return waitErr
			}
			continue
		}

		return exception.NewBatchError(s.name, "Item write failed (Fatal or limit reached)", err, false, false)
	}

	stepExecution.WriteCount++
	s.recorder.RecordItemWrite(ctx, s.name, 1)
	return nil
}

// commitChunk closes one commit interval: counters and a checkpoint.
func (s *ChunkStep[I, O]) commitChunk(ctx context.Context, stepExecution *model.StepExecution, items int) {
	stepExecution.CommitCount++
	s.recorder.RecordChunkCommit(ctx, s.name, items)

	if err := s.saveCheckpoint(ctx, stepExecution); err != nil {
		// A stale checkpoint only costs rework on restart.
		logger.Errorf("ChunkStep '%s': Failed to save checkpoint after commit: %v", s.name, err)
	}
}

// backoff waits the policy interval, honoring cancellation.
func (s *ChunkStep[I, O]) backoff(ctx context.Context, attempt int) error {
	interval := s.retryPolicy.GetBackoffInterval(attempt)
	if interval <= 0 {
		return nil
	}
	timer := time.NewTimer(interval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return exception.NewBatchError(s.name, "Context cancelled during retry backoff", ctx.Err(), false, false)
	case <-timer.C:
		return nil
	}
}

// loadCheckpoint restores the ExecutionContext and counters of a previous
// attempt of this StepExecution, or returns a fresh context for a first run.
//
// Checkpoint rows are keyed by StepExecution ID, and every process run
// creates a fresh StepExecution, so across process restarts these rows are
// write-only history. Cross-run resume belongs to the output artifact: the
// pending set is recomputed from it each run, and a stale reader position
// would not line up with the new chunk plan built from that smaller set.
func (s *ChunkStep[I, O]) loadCheckpoint(ctx context.Context, stepExecution *model.StepExecution) (model.ExecutionContext, error) {
	checkpointData, err := s.jobRepository.FindCheckpointData(ctx, stepExecution.ID)
	if err != nil {
		if errors.Is(err, repository.ErrCheckpointDataNotFound) {
			return model.NewExecutionContext(), nil
		}
		return nil, exception.NewBatchError(s.name, "Failed to load checkpoint data", err, false, false)
	}

	logger.Infof("ChunkStep '%s': Checkpoint data loaded. Restoring state.", s.name)
	ec := checkpointData.ExecutionContext
	if rc, ok := ec.GetInt("readCount"); ok {
		stepExecution.ReadCount = rc
	}
	if wc, ok := ec.GetInt("writeCount"); ok {
		stepExecution.WriteCount = wc
	}
	return ec, nil
}

// saveCheckpoint persists the reader position and counters.
func (s *ChunkStep[I, O]) saveCheckpoint(ctx context.Context, stepExecution *model.StepExecution) error {
	ec, err := s.reader.GetExecutionContext(ctx)
	if err != nil {
		return err
	}
	ec.Put("readCount", stepExecution.ReadCount)
	ec.Put("writeCount", stepExecution.WriteCount)

	checkpoint := &model.CheckpointData{
		StepExecutionID:  stepExecution.ID,
		ExecutionContext: ec,
	}
	if err := s.jobRepository.SaveCheckpointData(ctx, checkpoint); err != nil {
		return err
	}
	logger.Debugf("ChunkStep '%s': Checkpoint saved. Read: %d, Write: %d", s.name, stepExecution.ReadCount, stepExecution.WriteCount)
	return nil
}

// notifyRetryRead informs listeners and metrics of a read retry.
func (s *ChunkStep[I, O]) notifyRetryRead(ctx context.Context, err error) {
	s.recorder.RecordItemRetry(ctx, s.name, "read")
	for _, l := range s.retryListeners {
		l.OnRetryRead(ctx, err)
	}
}

// notifyRetryProcess informs listeners and metrics of a process retry.
func (s *ChunkStep[I, O]) notifyRetryProcess(ctx context.Context, item I, err error) {
	s.recorder.RecordItemRetry(ctx, s.name, "process")
	for _, l := range s.retryListeners {
		l.OnRetryProcess(ctx, item, err)
	}
}

// notifyRetryWrite informs listeners and metrics of a write retry.
func (s *ChunkStep[I, O]) notifyRetryWrite(ctx context.Context, items []O, err error) {
	s.recorder.RecordItemRetry(ctx, s.name, "write")
	itemsInterface := make([]interface{}, len(items))
	for i, item := range items {
		itemsInterface[i] = item
	}
	for _, l := range s.retryListeners {
		l.OnRetryWrite(ctx, itemsInterface, err)
	}
}

// notifySkipRead informs listeners and metrics of a read skip.
func (s *ChunkStep[I, O]) notifySkipRead(ctx context.Context, err error) {
	s.recorder.RecordItemSkip(ctx, s.name, "read")
	for _, l := range s.skipListeners {
		l.OnSkipRead(ctx, err)
	}
}

// notifySkipProcess informs listeners and metrics of a process skip.
func (s *ChunkStep[I, O]) notifySkipProcess(ctx context.Context, item I, err error) {
	s.recorder.RecordItemSkip(ctx, s.name, "process")
	for _, l := range s.skipListeners {
		l.OnSkipProcess(ctx, item, err)
	}
}
