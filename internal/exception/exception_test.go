package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ripple/internal/exception"
)

func TestNewBatchError(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := exception.NewBatchError("reader", "Chunk query failed", cause, false, true)

	assert.Equal(t, "reader", err.Module)
	assert.True(t, err.IsRetryable())
	assert.False(t, err.IsSkippable())
	assert.Contains(t, err.Error(), "[reader] Chunk query failed")
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.True(t, errors.Is(err, cause))
	assert.NotEmpty(t, err.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	err := exception.NewBatchErrorf("launcher", "Missing required job parameter '%s'", "input")

	assert.False(t, err.IsRetryable())
	assert.False(t, err.IsSkippable())
	assert.Contains(t, err.Error(), "Missing required job parameter 'input'")
}

func TestIsBatchError(t *testing.T) {
	assert.True(t, exception.IsBatchError(exception.NewBatchError("m", "msg", nil, false, false)))
	assert.False(t, exception.IsBatchError(errors.New("plain")))
	assert.False(t, exception.IsBatchError(nil))
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, exception.IsTemporary(exception.NewBatchError("m", "msg", nil, false, true)))
	assert.False(t, exception.IsTemporary(exception.NewBatchError("m", "msg", nil, true, false)))

	assert.True(t, exception.IsTemporary(errors.New("dial tcp: i/o timeout")))
	assert.False(t, exception.IsTemporary(errors.New("no such file")))
	assert.False(t, exception.IsTemporary(nil))
}

func TestIsErrorOfType_RegisteredSentinel(t *testing.T) {
	wrapped := fmt.Errorf("%w: dial tcp refused", exception.ErrNetwork)
	batchWrapped := exception.NewBatchError("reader", "Chunk query failed", wrapped, false, true)

	assert.True(t, exception.IsErrorOfType(wrapped, "NetworkError"))
	assert.True(t, exception.IsErrorOfType(batchWrapped, "NetworkError"),
		"a sentinel stays matchable through BatchError wrapping")
	assert.False(t, exception.IsErrorOfType(wrapped, "AuthenticationError"))
}

func TestIsErrorOfType_MessageSubstring(t *testing.T) {
	err := errors.New("upstream returned 503 Service Unavailable")
	assert.True(t, exception.IsErrorOfType(err, "503"))
	assert.False(t, exception.IsErrorOfType(err, "404"))
}

func TestExtractErrorMessage(t *testing.T) {
	be := exception.NewBatchError("writer", "Failed to flush output file", errors.New("disk full"), false, false)
	assert.Equal(t, "Failed to flush output file", exception.ExtractErrorMessage(be))

	plain := errors.New("plain failure")
	assert.Equal(t, "plain failure", exception.ExtractErrorMessage(plain))
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
}

func TestRegisterErrorType(t *testing.T) {
	sentinel := errors.New("CustomTestError")
	exception.RegisterErrorType("CustomTestError", sentinel)

	require.True(t, exception.IsErrorTypeRegistered("CustomTestError"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("wrap: %w", sentinel), "CustomTestError"))
}
