// Package processor provides the ItemProcessor that turns a store record into
// an analyzed outcome via the completion service.
package processor

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/ripple/internal/completion"
	"github.com/tigerroll/ripple/internal/core/port"
	"github.com/tigerroll/ripple/internal/domain"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
	"github.com/tigerroll/ripple/internal/metrics"
)

// ModuleCompletionProcessor is the module name used in errors raised by CompletionProcessor.
const ModuleCompletionProcessor = "completion_processor"

// CompletionProcessor combines a record's labeled text fields and sends the
// result to the completion service.
//
// A record whose fields are all empty is filtered: the processor returns no
// output and the record produces no outcome row. A completion failure does
// not fail the record either; the failure message becomes the outcome
// response so the run keeps its one row per record shape.
type CompletionProcessor struct {
	service     completion.Service
	fieldSet    *domain.FieldSet
	prompt      string
	filterField string
	recorder    metrics.MetricRecorder
	stepName    string
}

var _ port.ItemProcessor[*domain.Record, *domain.Outcome] = (*CompletionProcessor)(nil)

// NewCompletionProcessor creates a CompletionProcessor.
//
// Parameters:
//
//	service: The completion backend.
//	fieldSet: The ordered field names and display labels used to combine text.
//	prompt: The instruction applied to every record.
//	filterField: The field whose value identifies the record in the output.
//	recorder: The metric recorder for completion telemetry.
//	stepName: The step name used as the metric label.
func NewCompletionProcessor(service completion.Service, fieldSet *domain.FieldSet, prompt, filterField string, recorder metrics.MetricRecorder, stepName string) *CompletionProcessor {
	return &CompletionProcessor{
		service:     service,
		fieldSet:    fieldSet,
		prompt:      prompt,
		filterField: filterField,
		recorder:    recorder,
		stepName:    stepName,
	}
}

// Process combines the record's fields and requests a completion.
func (p *CompletionProcessor) Process(ctx context.Context, item *domain.Record) (*domain.Outcome, error) {
	select {
	case <-ctx.Done():
		logger.Warnf("%s: Context cancelled during Process: %v", ModuleCompletionProcessor, ctx.Err())
		return nil, exception.NewBatchError(ModuleCompletionProcessor, "Context cancelled during Process", ctx.Err(), false, false)
	default:
	}

	combined := p.fieldSet.Combine(item)
	if combined == "" {
		logger.Debugf("%s: Record '%s' has no text in any configured field; filtering.", ModuleCompletionProcessor, item.ID)
		return nil, nil
	}

	start := time.Now()
	response, err := p.service.Complete(ctx, p.prompt, combined)
	p.recorder.RecordDuration(ctx, "completion_request_duration", time.Since(start), map[string]string{"step_name": p.stepName})

	if err != nil {
		var ce *completion.Error
		if errors.As(err, &ce) {
			// One record's completion failure is data, not a step failure.
			logger.Warnf("%s: Completion failed for record '%s': %v", ModuleCompletionProcessor, item.ID, ce)
			response = "Error: " + ce.Error()
		} else {
			return nil, exception.NewBatchError(ModuleCompletionProcessor, "Completion request failed", err, false, true)
		}
	}

	return &domain.Outcome{
		RecordID:     item.ID,
		FilterValue:  item.FieldValue(p.filterField),
		CombinedText: combined,
		Response:     response,
	}, nil
}
