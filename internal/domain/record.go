// Package domain holds the business entities of the record-analysis pipeline:
// the filter specification parsed from the input CSV, the records fetched from
// the record store, the labeled field set, and the per-record outcome.
package domain

import "strings"

// FilterSpec describes which records to fetch from the store: the field to
// filter on and the list of values to match. Values preserve input order.
type FilterSpec struct {
	FieldName string
	Values    []string
}

// Record is a single record returned by the record store.
// Fields maps field names to their raw string values.
type Record struct {
	ID     string
	Fields map[string]string
}

// FieldValue returns the value of the named field, or "" if absent.
func (r *Record) FieldValue(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Outcome is one row of the output artifact: the record it belongs to, the
// filter value that matched it, the combined text sent to the completion
// backend, and the backend's response (or an error marker).
type Outcome struct {
	RecordID     string
	FilterValue  string
	CombinedText string
	Response     string
}

// FieldSet carries the ordered field names selected for analysis together
// with their human-readable labels from the store's metadata.
type FieldSet struct {
	names  []string
	labels map[string]string
}

// NewFieldSet creates a FieldSet from ordered field names and a label map.
// Fields without a label fall back to their raw name.
func NewFieldSet(names []string, labels map[string]string) *FieldSet {
	return &FieldSet{names: names, labels: labels}
}

// Names returns the ordered field names.
func (fs *FieldSet) Names() []string {
	return fs.names
}

// Label returns the human-readable label for a field name,
// falling back to the raw name when no label is known.
func (fs *FieldSet) Label(name string) string {
	if fs.labels != nil {
		if label, ok := fs.labels[name]; ok && label != "" {
			return label
		}
	}
	return name
}

// Combine builds the analysis text for a record: each non-empty field is
// rendered as "<label>: <value>" with surrounding whitespace trimmed, and
// the segments are joined by blank lines in field order. A record whose
// selected fields are all empty yields "".
func (fs *FieldSet) Combine(r *Record) string {
	segments := make([]string, 0, len(fs.names))
	for _, name := range fs.names {
		value := strings.TrimSpace(r.FieldValue(name))
		if value == "" {
			continue
		}
		segments = append(segments, fs.Label(name)+": "+value)
	}
	return strings.Join(segments, "\n\n")
}
