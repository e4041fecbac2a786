// Package exception provides custom error types and error handling utilities for ripple.
// It standardizes errors that occur during batch processing, allowing them to be
// categorized for retry and skip policies, and carries the error taxonomy of the
// record-analysis pipeline (input, authentication, query, metadata, network).
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// errorRegistry maps error type names referenced in policy configuration
// to concrete Go error instances for comparison using errors.Is.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers an error type in the registry.
// Registered error types are referenced by name in retry/skip policy
// configuration and by the IsErrorOfType function.
//
// name: A unique identifier for the error type.
// prototype: An instance of the error to be registered. Used for comparison with errors.Is.
//
// If prototype is nil or name is empty, this function will panic.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}

	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered checks if the specified error type name is registered in the registry.
// name: The error type name to check.
// Returns: true if registered, false otherwise.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is a custom error type that occurs during batch processing.
// It holds the module where the error occurred, a message, the wrapped original error,
// and flags indicating whether it is retryable or skippable.
type BatchError struct {
	// Module indicates the module where the error occurred (e.g., "reader", "processor", "writer", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// isSkippable indicates whether this error is skippable.
	isSkippable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewBatchError creates a new BatchError instance.
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
// isSkippable: Whether this error is skippable.
// isRetryable: Whether this error is retryable.
// Returns: A new BatchError instance.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	stackTrace := string(buf[:n])

	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  stackTrace,
	}
}

// NewBatchErrorf creates a new non-retryable, non-skippable BatchError with a
// formatted message.
// module: The module where the error occurred.
// format: The message format string.
// args: The format arguments.
// Returns: A new BatchError instance.
func NewBatchErrorf(module, format string, args ...interface{}) *BatchError {
	return NewBatchError(module, fmt.Sprintf(format, args...), nil, false, false)
}

// Error implements the error interface.
// It returns the error's module, message, and the string representation of the original error.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError determines if the given error is of type BatchError.
// err: The error to check.
// Returns: true if it is a BatchError, false otherwise.
func IsBatchError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*BatchError)
	return ok
}

// IsTemporary determines if an error is temporary (e.g., network error, transient connection issue).
// This function is used by retry logic.
// If it's a BatchError, its IsRetryable flag takes precedence.
// err: The error to check.
// Returns: true if it's a temporary error, false otherwise.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := err.(*BatchError); ok {
		return be.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// IsFatal determines if an error is fatal (cannot be retried or skipped).
// This function is used by skip logic.
// If it's a BatchError, its flags take precedence.
// err: The error to check.
// Returns: true if it's a fatal error, false otherwise.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := err.(*BatchError); ok {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid argument") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "data corruption")
}

// IsErrorOfType checks if an error matches a specified type name (string).
// errorTypeName can be a registered sentinel name (e.g., "NetworkError"), a Go error
// type name (e.g., "*net.OpError"), or a substring of an error message.
// It checks in order: registered sentinel errors (errors.Is), substring of error message,
// and type name comparison using reflection.
// err: The error to check.
// errorTypeName: The error type name or substring to compare against.
// Returns: true if it matches, false otherwise.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	targetError, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()

	if ok {
		if errors.Is(err, targetError) {
			return true
		}
	}

	currentErr := err
	for currentErr != nil {
		if strings.Contains(currentErr.Error(), errorTypeName) {
			return true
		}

		errType := reflect.TypeOf(currentErr)
		if errType != nil {
			if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
				return true
			}
		}

		currentErr = errors.Unwrap(currentErr)
	}

	return false
}

// Sentinel errors for the pipeline's error taxonomy. Callers wrap these with
// NewBatchError (or errors.Join) so policies and tests can classify failures
// with errors.Is.
var (
	// ErrMalformedInput indicates the input CSV could not be parsed. Fatal.
	ErrMalformedInput = errors.New("MalformedInputError")
	// ErrAuthentication indicates the record store rejected the credentials. Fatal, never retried.
	ErrAuthentication = errors.New("AuthenticationError")
	// ErrQuery indicates the record store rejected or failed a chunk query. Fatal to the run.
	ErrQuery = errors.New("QueryError")
	// ErrMetadata indicates field metadata (labels) could not be retrieved. Fatal.
	ErrMetadata = errors.New("MetadataError")
	// ErrNetwork indicates a transport-level failure talking to a remote endpoint.
	ErrNetwork = errors.New("NetworkError")
)

func init() {
	// Register sentinel errors so policies can reference them by constant name.
	RegisterErrorType("MalformedInputError", ErrMalformedInput)
	RegisterErrorType("AuthenticationError", ErrAuthentication)
	RegisterErrorType("QueryError", ErrQuery)
	RegisterErrorType("MetadataError", ErrMetadata)
	RegisterErrorType("NetworkError", ErrNetwork)

	// Common error names usable in policy configuration.
	RegisterErrorType("io.EOF", errors.New("io.EOF"))
	RegisterErrorType("net.OpError", errors.New("net.OpError"))
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}

// ExtractErrorMessage extracts the error message string from an error.
// For BatchError, it returns the cleaner Message field.
// Otherwise, it returns the standard Error() string.
// err: The error from which to extract the message.
// Returns: The error message string.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := err.(*BatchError); ok {
		return be.Message
	}
	return err.Error()
}
