package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/ripple/internal/core/model"
)

// NoopRecorder is a MetricRecorder that records nothing.
// It is used when metrics are disabled and in tests.
type NoopRecorder struct{}

var _ MetricRecorder = (*NoopRecorder)(nil)

// NewNoopRecorder creates a new NoopRecorder.
func NewNoopRecorder() MetricRecorder {
	return &NoopRecorder{}
}

func (r *NoopRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution)   {}
func (r *NoopRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution)     {}
func (r *NoopRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}
func (r *NoopRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution)   {}
func (r *NoopRecorder) RecordItemRead(ctx context.Context, stepName string)                 {}
func (r *NoopRecorder) RecordItemProcess(ctx context.Context, stepName string)              {}
func (r *NoopRecorder) RecordItemWrite(ctx context.Context, stepName string, count int)     {}
func (r *NoopRecorder) RecordItemFilter(ctx context.Context, stepName string)               {}
func (r *NoopRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string)  {}
func (r *NoopRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {}
func (r *NoopRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int)   {}
func (r *NoopRecorder) RecordChunkFetch(ctx context.Context, stepName string, pages, records int) {
}
func (r *NoopRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}
