// Package writer provides the ItemWriter that appends analyzed outcomes to
// the output CSV.
package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/core/port"
	"github.com/tigerroll/ripple/internal/domain"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
)

// ModuleOutcomeCSVWriter is the module name used in errors raised by OutcomeCSVWriter.
const ModuleOutcomeCSVWriter = "outcome_csv_writer"

// OutcomeCSVWriter appends outcome rows to the output CSV.
//
// The file is opened in append mode so previous runs' rows survive a restart;
// the header is written only when the writer creates the file. Every Write
// call flushes, so each committed chunk is durable on disk.
type OutcomeCSVWriter struct {
	path        string
	filterField string

	file *os.File
	csv  *csv.Writer
}

var _ port.ItemWriter[*domain.Outcome] = (*OutcomeCSVWriter)(nil)

// NewOutcomeCSVWriter creates a writer for the given output path.
//
// Parameters:
//
//	path: The output CSV path.
//	filterField: The filter field name used as the second header column.
func NewOutcomeCSVWriter(path, filterField string) *OutcomeCSVWriter {
	return &OutcomeCSVWriter{path: path, filterField: filterField}
}

// Open opens the output file for appending and writes the header when the
// file is new.
func (w *OutcomeCSVWriter) Open(ctx context.Context, ec model.ExecutionContext) error {
	select {
	case <-ctx.Done():
		logger.Warnf("%s: Context cancelled during Open: %v", ModuleOutcomeCSVWriter, ctx.Err())
		return exception.NewBatchError(ModuleOutcomeCSVWriter, "Context cancelled during Open", ctx.Err(), false, false)
	default:
	}

	info, statErr := os.Stat(w.path)
	isNew := os.IsNotExist(statErr) || (statErr == nil && info.Size() == 0)

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return exception.NewBatchError(ModuleOutcomeCSVWriter, fmt.Sprintf("Failed to open output file '%s'", w.path), err, false, false)
	}
	w.file = f
	w.csv = csv.NewWriter(f)

	if isNew {
		header := []string{"record_id", w.filterField, "combined_text", "response"}
		if err := w.csv.Write(header); err != nil {
			return exception.NewBatchError(ModuleOutcomeCSVWriter, "Failed to write output header", err, false, false)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			return exception.NewBatchError(ModuleOutcomeCSVWriter, "Failed to flush output header", err, false, false)
		}
		logger.Debugf("%s: Created output file '%s' with header.", ModuleOutcomeCSVWriter, w.path)
	}

	return nil
}

// Write appends one row per outcome and flushes.
func (w *OutcomeCSVWriter) Write(ctx context.Context, items []*domain.Outcome) error {
	select {
	case <-ctx.Done():
		logger.Warnf("%s: Context cancelled during Write: %v", ModuleOutcomeCSVWriter, ctx.Err())
		return exception.NewBatchError(ModuleOutcomeCSVWriter, "Context cancelled during Write", ctx.Err(), false, false)
	default:
	}

	if w.csv == nil {
		return exception.NewBatchError(ModuleOutcomeCSVWriter, "Writer is not open", nil, false, false)
	}

	for _, item := range items {
		row := []string{item.RecordID, item.FilterValue, item.CombinedText, item.Response}
		if err := w.csv.Write(row); err != nil {
			return exception.NewBatchError(ModuleOutcomeCSVWriter, fmt.Sprintf("Failed to write outcome for record '%s'", item.RecordID), err, false, false)
		}
	}

	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return exception.NewBatchError(ModuleOutcomeCSVWriter, "Failed to flush output file", err, false, false)
	}
	return nil
}

// Close flushes pending rows and closes the output file.
func (w *OutcomeCSVWriter) Close(ctx context.Context) error {
	select {
	case <-ctx.Done():
		logger.Warnf("%s: Context cancelled during Close: %v", ModuleOutcomeCSVWriter, ctx.Err())
	default:
	}

	if w.csv != nil {
		w.csv.Flush()
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return exception.NewBatchError(ModuleOutcomeCSVWriter, "Failed to close output file", err, false, false)
		}
		w.file = nil
		w.csv = nil
	}
	return nil
}
