// Package reader provides the ItemReader that streams records out of the
// record store, one chunk of filter values at a time.
package reader

import (
	"context"
	"fmt"
	"io"
	"time"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/core/port"
	"github.com/tigerroll/ripple/internal/domain"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
	"github.com/tigerroll/ripple/internal/metrics"
	"github.com/tigerroll/ripple/internal/recordstore"
)

// ModuleRecordStoreReader is the module name used in errors raised by RecordStoreReader.
const ModuleRecordStoreReader = "record_store_reader"

// maxChunkValues is the store's hard ceiling on filter values per query.
// Configured chunk sizes above it are clamped.
const maxChunkValues = 450

// Config holds the reader settings derived from batch configuration.
type Config struct {
	Object      string
	Fields      []string
	FilterField string
	ChunkSize   int
	PageSize    int
	MaxPages    int
	ChunkDelay  time.Duration
}

// RecordStoreReader reads records matching the pending filter values.
//
// At Open the pending values are split into chunks of at most ChunkSize
// (clamped to the store ceiling). Each chunk is fetched as one paginated
// query; records are buffered and served one at a time through Read. Records
// appearing in more than one chunk or page are served once, first occurrence
// wins. Consecutive chunk queries are separated by ChunkDelay.
type RecordStoreReader struct {
	client   *recordstore.Client
	cfg      Config
	values   []string
	recorder metrics.MetricRecorder
	stepName string

	chunks     [][]string
	chunkIndex int
	buffer     []*domain.Record
	bufferPos  int
	seen       map[string]struct{}
	served     int
	fetched    bool
}

var _ port.ItemReader[*domain.Record] = (*RecordStoreReader)(nil)

// NewRecordStoreReader creates a reader over the given pending filter values.
//
// Parameters:
//
//	client: The authenticated record store client.
//	cfg: The reader settings.
//	values: The pending filter values, already deduplicated.
//	recorder: The metric recorder for fetch telemetry.
//	stepName: The step name used as the metric label.
func NewRecordStoreReader(client *recordstore.Client, cfg Config, values []string, recorder metrics.MetricRecorder, stepName string) *RecordStoreReader {
	return &RecordStoreReader{
		client:   client,
		cfg:      cfg,
		values:   values,
		recorder: recorder,
		stepName: stepName,
		seen:     make(map[string]struct{}),
	}
}

// Open plans the chunk schedule and restores the reader position from a
// previous checkpoint if one is present in the ExecutionContext.
func (r *RecordStoreReader) Open(ctx context.Context, ec model.ExecutionContext) error {
	select {
	case <-ctx.Done():
		logger.Warnf("%s: Context cancelled during Open: %v", ModuleRecordStoreReader, ctx.Err())
		return exception.NewBatchError(ModuleRecordStoreReader, "Context cancelled during Open", ctx.Err(), false, false)
	default:
	}

	chunkSize := r.cfg.ChunkSize
	if chunkSize <= 0 || chunkSize > maxChunkValues {
		if chunkSize > maxChunkValues {
			logger.Warnf("%s: Configured chunk size %d exceeds the store ceiling; clamping to %d.", ModuleRecordStoreReader, chunkSize, maxChunkValues)
		}
		chunkSize = maxChunkValues
	}

	r.chunks = nil
	for start := 0; start < len(r.values); start += chunkSize {
		end := start + chunkSize
		if end > len(r.values) {
			end = len(r.values)
		}
		r.chunks = append(r.chunks, r.values[start:end])
	}

	r.chunkIndex = 0
	r.buffer = nil
	r.bufferPos = 0
	r.served = 0
	r.fetched = false

	// A restored position is only meaningful within the execution that saved
	// it: the chunk plan is built from the pending values of the current run,
	// and across process runs the output artifact already removes finished
	// values before the reader sees them.
	if ec != nil {
		if savedChunk, ok := ec.GetInt("reader.chunk_index"); ok {
			r.chunkIndex = savedChunk
			logger.Infof("%s: Restored reader position: resuming at chunk %d of %d.", ModuleRecordStoreReader, r.chunkIndex+1, len(r.chunks))
		}
	}

	logger.Infof("%s: Planned %d chunk(s) for %d filter value(s) (chunk size %d).",
		ModuleRecordStoreReader, len(r.chunks), len(r.values), chunkSize)
	return nil
}

// Read returns the next record, fetching the next chunk when the buffer is
// exhausted. io.EOF signals that every chunk has been served.
func (r *RecordStoreReader) Read(ctx context.Context) (*domain.Record, error) {
	select {
	case <-ctx.Done():
		logger.Warnf("%s: Context cancelled during Read: %v", ModuleRecordStoreReader, ctx.Err())
		return nil, exception.NewBatchError(ModuleRecordStoreReader, "Context cancelled during Read", ctx.Err(), false, false)
	default:
	}

	for r.bufferPos >= len(r.buffer) {
		if r.chunkIndex >= len(r.chunks) {
			return nil, io.EOF
		}
		if err := r.fetchChunk(ctx); err != nil {
			return nil, err
		}
	}

	rec := r.buffer[r.bufferPos]
	r.bufferPos++
	r.served++
	return rec, nil
}

// fetchChunk runs the query for the current chunk, walking every continuation
// page, and refills the buffer with the records not seen before.
func (r *RecordStoreReader) fetchChunk(ctx context.Context) error {
	if r.fetched && r.cfg.ChunkDelay > 0 {
		timer := time.NewTimer(r.cfg.ChunkDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return exception.NewBatchError(ModuleRecordStoreReader, "Context cancelled while pacing chunk queries", ctx.Err(), false, false)
		case <-timer.C:
		}
	}

	chunk := r.chunks[r.chunkIndex]
	logger.Debugf("%s: Fetching chunk %d/%d (%d values).", ModuleRecordStoreReader, r.chunkIndex+1, len(r.chunks), len(chunk))

	page, err := r.client.Query(ctx, r.cfg.Object, r.cfg.Fields, r.cfg.FilterField, chunk, r.cfg.PageSize)
	if err != nil {
		return exception.NewBatchError(ModuleRecordStoreReader,
			fmt.Sprintf("Chunk %d/%d query failed", r.chunkIndex+1, len(r.chunks)), err, false, false)
	}

	records := make([]*domain.Record, 0, len(page.Records))
	pages := 1
	for {
		for _, rec := range page.Records {
			if _, dup := r.seen[rec.ID]; dup {
				logger.Debugf("%s: Record '%s' already served; dropping duplicate.", ModuleRecordStoreReader, rec.ID)
				continue
			}
			r.seen[rec.ID] = struct{}{}
			records = append(records, rec)
		}

		if page.NextPageToken == "" {
			break
		}
		if r.cfg.MaxPages > 0 && pages >= r.cfg.MaxPages {
			logger.Warnf("%s: Chunk %d/%d hit the page cap of %d; remaining pages are not fetched.",
				ModuleRecordStoreReader, r.chunkIndex+1, len(r.chunks), r.cfg.MaxPages)
			break
		}

		page, err = r.client.QueryPage(ctx, page.NextPageToken)
		if err != nil {
			return exception.NewBatchError(ModuleRecordStoreReader,
				fmt.Sprintf("Chunk %d/%d page %d fetch failed", r.chunkIndex+1, len(r.chunks), pages+1), err, false, false)
		}
		pages++
	}

	r.recorder.RecordChunkFetch(ctx, r.stepName, pages, len(records))
	logger.Debugf("%s: Chunk %d/%d returned %d record(s) over %d page(s).",
		ModuleRecordStoreReader, r.chunkIndex+1, len(r.chunks), len(records), pages)

	r.buffer = records
	r.bufferPos = 0
	r.chunkIndex++
	r.fetched = true
	return nil
}

// Close releases the reader's buffered state.
func (r *RecordStoreReader) Close(ctx context.Context) error {
	select {
	case <-ctx.Done():
		logger.Warnf("%s: Context cancelled during Close: %v", ModuleRecordStoreReader, ctx.Err())
		return exception.NewBatchError(ModuleRecordStoreReader, "Context cancelled during Close", ctx.Err(), false, false)
	default:
	}
	r.buffer = nil
	r.bufferPos = 0
	return nil
}

// GetExecutionContext returns the reader position for checkpointing. The next
// unfetched chunk index is saved; a restart re-fetches the interrupted chunk
// and relies on output-based resume to avoid duplicate outcomes.
func (r *RecordStoreReader) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	select {
	case <-ctx.Done():
		return nil, exception.NewBatchError(ModuleRecordStoreReader, "Context cancelled during GetExecutionContext", ctx.Err(), false, false)
	default:
	}

	ec := model.NewExecutionContext()
	completed := r.chunkIndex
	if r.bufferPos < len(r.buffer) {
		completed = r.chunkIndex - 1
		if completed < 0 {
			completed = 0
		}
	}
	ec.Put("reader.chunk_index", completed)
	ec.Put("reader.served", r.served)
	return ec, nil
}
