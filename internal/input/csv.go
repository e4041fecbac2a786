// Package input parses the filter value CSV that drives a pipeline run.
package input

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/tigerroll/ripple/internal/domain"
	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
)

const moduleInput = "input_csv"

// ParseFilterFile reads a filter value CSV and returns the filter field name
// together with its values.
//
// The first row is the header and names the filter field. Every following row
// contributes the value of its first column; surrounding whitespace is
// trimmed and empty rows are dropped. A UTF-8 byte order mark on the header
// is tolerated.
//
// Parameters:
//
//	path: The path of the input CSV.
//
// Returns:
//
//	*domain.FilterSpec: The parsed field name and values.
//	error: A fatal BatchError wrapping ErrMalformedInput when the file cannot
//	be read or yields no usable header.
func ParseFilterFile(path string) (*domain.FilterSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, exception.NewBatchError(moduleInput, fmt.Sprintf("Failed to open input file '%s'", path), err, false, false)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", exception.ErrMalformedInput, err)
		return nil, exception.NewBatchError(moduleInput, fmt.Sprintf("Failed to parse input file '%s'", path), wrapped, false, false)
	}

	if len(rows) == 0 {
		return nil, exception.NewBatchError(moduleInput, fmt.Sprintf("Input file '%s' is empty", path), exception.ErrMalformedInput, false, false)
	}

	fieldName := strings.TrimSpace(strings.TrimPrefix(rows[0][0], "\uFEFF"))
	if fieldName == "" {
		return nil, exception.NewBatchError(moduleInput, fmt.Sprintf("Input file '%s' has no header field name", path), exception.ErrMalformedInput, false, false)
	}

	values := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		value := strings.TrimSpace(row[0])
		if value == "" {
			continue
		}
		values = append(values, value)
	}

	logger.Debugf("Parsed input file '%s': field '%s', %d values.", path, fieldName, len(values))
	return &domain.FilterSpec{FieldName: fieldName, Values: values}, nil
}
