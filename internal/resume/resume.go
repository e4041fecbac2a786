// Package resume derives the set of already processed filter values from a
// previous run's output CSV so a restarted run only works on what is left.
package resume

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/tigerroll/ripple/internal/logger"
)

// filterValueColumn is the output column holding the filter value when the
// header does not name the filter field.
const filterValueColumn = 1

// LoadProcessed reads the output CSV of a previous run and returns the set of
// filter values that already have outcome rows.
//
// The column is located by matching the header against the filter field name;
// when no header cell matches, the second column is used, matching the layout
// the outcome writer produces. A missing file means a fresh run. A file that
// cannot be parsed is logged and treated as empty rather than failing the
// run: reprocessing is safe, losing the run is not.
//
// Parameters:
//
//	path: The path of the output CSV.
//	filterField: The filter field name to match against the header.
//
// Returns:
//
//	map[string]struct{}: The set of processed filter values.
func LoadProcessed(path, filterField string) map[string]struct{} {
	processed := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Failed to open output file '%s' for resume: %v. Starting fresh.", path, err)
		}
		return processed
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Warnf("Failed to read output header from '%s': %v. Starting fresh.", path, err)
		}
		return processed
	}

	column := filterValueColumn
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), filterField) {
			column = i
			break
		}
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warnf("Output file '%s' is not fully parseable: %v. Resuming with %d values.", path, err, len(processed))
			break
		}
		if column >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[column])
		if value == "" {
			continue
		}
		processed[value] = struct{}{}
	}

	logger.Debugf("Loaded %d processed filter values from '%s'.", len(processed), path)
	return processed
}

// FilterPending returns the filter values that still need processing, in
// input order, with duplicates removed.
//
// Parameters:
//
//	values: The filter values from the input file.
//	processed: The set returned by LoadProcessed.
//
// Returns:
//
//	[]string: The deduplicated values not yet present in the output.
func FilterPending(values []string, processed map[string]struct{}) []string {
	pending := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		if _, done := processed[value]; done {
			continue
		}
		pending = append(pending, value)
	}
	return pending
}
