// Package storage defines the interface for artifact storage backends.
// It abstracts where exported artifacts land so the export step does not care
// whether the target is a local directory or a remote object store.
package storage

import (
	"context"
	"io"
)

// Connection represents an artifact storage connection.
type Connection interface {
	// Upload writes data to the given bucket and object name.
	// 'data' is the stream of data to upload. 'contentType' is the MIME type of the data.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download reads the given object. The returned ReadCloser must be closed
	// by the caller after use.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// Name returns the name of this connection.
	Name() string
	// Type returns the backend type identifier (e.g., "local").
	Type() string
	// Close releases the connection's resources.
	Close() error
}
