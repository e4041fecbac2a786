package retry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/step/retry"
)

func TestPolicy_ShouldRetry_BatchErrorFlag(t *testing.T) {
	p := retry.NewPolicy(3, time.Second, nil)

	retryable := exception.NewBatchError("test", "transient", nil, false, true)
	assert.True(t, p.ShouldRetry(retryable))

	fatal := exception.NewBatchError("test", "fatal", nil, false, false)
	assert.False(t, p.ShouldRetry(fatal))

	assert.False(t, p.ShouldRetry(nil))
}

func TestPolicy_ShouldRetry_ConfiguredExceptionNames(t *testing.T) {
	p := retry.NewPolicy(3, time.Second, []string{"NetworkError"})

	assert.True(t, p.ShouldRetry(exception.ErrNetwork))
	assert.False(t, p.ShouldRetry(errors.New("something else entirely")))
}

func TestPolicy_FixedBackoffAndMaxAttempts(t *testing.T) {
	p := retry.NewPolicy(5, 250*time.Millisecond, nil)

	assert.Equal(t, 5, p.GetMaxAttempts())
	assert.Equal(t, 250*time.Millisecond, p.GetBackoffInterval(1))
	assert.Equal(t, 250*time.Millisecond, p.GetBackoffInterval(4))
}
