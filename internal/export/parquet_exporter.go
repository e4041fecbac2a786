// Package export converts a finished run's outcome CSV into a Parquet
// artifact and stores it through a storage connection.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
	"github.com/tigerroll/ripple/internal/storage"
)

const moduleExport = "parquet_export"

// outcomeRow is the Parquet schema of one exported outcome.
type outcomeRow struct {
	RecordID     string `parquet:"name=record_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FilterValue  string `parquet:"name=filter_value, type=BYTE_ARRAY, convertedtype=UTF8"`
	CombinedText string `parquet:"name=combined_text, type=BYTE_ARRAY, convertedtype=UTF8"`
	Response     string `parquet:"name=response, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ParquetExporter reads the outcome CSV and writes a Snappy-compressed
// Parquet copy next to it through the configured storage connection.
type ParquetExporter struct {
	conn   storage.Connection
	bucket string
}

// NewParquetExporter creates an exporter on the given storage connection.
//
// Parameters:
//
//	conn: The storage connection the artifact is uploaded through.
//	bucket: The bucket (or directory) receiving the artifact.
func NewParquetExporter(conn storage.Connection, bucket string) *ParquetExporter {
	return &ParquetExporter{conn: conn, bucket: bucket}
}

// Export converts the outcome CSV at csvPath into a Parquet file and uploads
// it. The object name derives from the CSV file name plus a timestamp.
//
// Returns:
//
//	string: The object name of the uploaded artifact.
//	error: A BatchError if reading, conversion, or upload fails.
func (e *ParquetExporter) Export(ctx context.Context, csvPath string) (string, error) {
	rows, err := e.readOutcomes(csvPath)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		logger.Infof("%s: Output file '%s' has no outcome rows; skipping export.", moduleExport, csvPath)
		return "", nil
	}

	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(outcomeRow), int64(len(rows)))
	if err != nil {
		return "", exception.NewBatchError(moduleExport, "Failed to create Parquet writer", err, false, false)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	var multiErr error
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewBatchError(moduleExport,
				fmt.Sprintf("Failed to write outcome for record '%s'", row.RecordID), err, false, false))
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr := fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
				multiErr = multierror.Append(multiErr, exception.NewBatchError(moduleExport, panicErr.Error(), panicErr, false, false))
				logger.Errorf("%s: Recovered from panic during WriteStop: %v", moduleExport, r)
			}
		}()
		if err := pw.WriteStop(); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewBatchError(moduleExport, "Failed to finalize Parquet file", err, false, false))
		}
	}()
	if multiErr != nil {
		return "", multiErr
	}

	base := filepath.Base(csvPath)
	objectName := fmt.Sprintf("%s_%s.parquet", base[:len(base)-len(filepath.Ext(base))], time.Now().Format("20060102150405"))

	if err := e.conn.Upload(ctx, e.bucket, objectName, buf, "application/octet-stream"); err != nil {
		return "", exception.NewBatchError(moduleExport, fmt.Sprintf("Failed to upload Parquet artifact '%s'", objectName), err, false, false)
	}

	logger.Infof("%s: Exported %d outcome(s) to '%s'.", moduleExport, len(rows), objectName)
	return objectName, nil
}

// readOutcomes parses the outcome CSV into rows, skipping the header.
func (e *ParquetExporter) readOutcomes(csvPath string) ([]outcomeRow, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, exception.NewBatchError(moduleExport, fmt.Sprintf("Failed to open output file '%s'", csvPath), err, false, false)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, exception.NewBatchError(moduleExport, fmt.Sprintf("Failed to read output header from '%s'", csvPath), err, false, false)
	}

	var rows []outcomeRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, exception.NewBatchError(moduleExport, fmt.Sprintf("Failed to parse output file '%s'", csvPath), err, false, false)
		}
		if len(record) < 4 {
			continue
		}
		rows = append(rows, outcomeRow{
			RecordID:     record[0],
			FilterValue:  record[1],
			CombinedText: record[2],
			Response:     record[3],
		})
	}
	return rows, nil
}
