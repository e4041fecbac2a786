// Package local provides a local file system implementation of the storage
// Connection interface.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tigerroll/ripple/internal/logger"
	"github.com/tigerroll/ripple/internal/storage"
)

// ProviderType is the type identifier for this local storage adapter.
const ProviderType = "local"

// localAdapter implements storage.Connection on a base directory. Buckets are
// subdirectories and object names are relative file paths.
type localAdapter struct {
	baseDir string
	name    string
}

var _ storage.Connection = (*localAdapter)(nil)

// NewLocalAdapter creates a local storage connection rooted at baseDir,
// creating the directory when it does not exist.
func NewLocalAdapter(baseDir, name string) (storage.Connection, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': base directory must be specified", name)
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("local storage adapter '%s': failed to stat base directory '%s': %w", name, baseDir, err)
		}
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage adapter '%s': failed to create base directory '%s': %w", name, baseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage adapter '%s': base directory '%s' is not a directory", name, baseDir)
	}

	return &localAdapter{baseDir: baseDir, name: name}, nil
}

// resolvePath joins the bucket and object name under the base directory and
// rejects paths that escape it.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	fullPath := filepath.Join(a.baseDir, bucket, objectName)
	cleanBase := filepath.Clean(a.baseDir) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(fullPath)+string(os.PathSeparator), cleanBase) {
		return "", fmt.Errorf("object path '%s' escapes base directory '%s'", objectName, a.baseDir)
	}
	return fullPath, nil
}

// Upload writes data to the resolved file path, creating parent directories.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for upload: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", filepath.Dir(fullPath), err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", fullPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("failed to write data to file '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded data to '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// Download opens the resolved file path. The caller closes the reader.
func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

// Name returns the name of this connection.
func (a *localAdapter) Name() string {
	return a.name
}

// Type returns "local".
func (a *localAdapter) Type() string {
	return ProviderType
}

// Close does nothing for the local file system adapter.
func (a *localAdapter) Close() error {
	logger.Debugf("Local storage adapter '%s' closed.", a.name)
	return nil
}
