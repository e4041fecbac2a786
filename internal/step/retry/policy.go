// Package retry decides whether a failed item operation is attempted again
// and how long to wait between attempts.
package retry

import (
	"time"

	"github.com/tigerroll/ripple/internal/exception"
)

// RetryPolicy defines retry logic for item level failures.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	// err: The error to evaluate.
	// Returns: true if the error is retryable, false otherwise.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before the next attempt.
	// attempt: The current attempt number (starting from 1).
	// Returns: The waiting time until the next retry.
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts.
	GetMaxAttempts() int
}

// NewPolicy creates a RetryPolicy with a fixed backoff interval.
//
// Parameters:
//
//	maxAttempts: The maximum number of attempts for one item.
//	initialInterval: The wait between attempts.
//	retryableExceptions: Registered error type names considered retryable.
func NewPolicy(maxAttempts int, initialInterval time.Duration, retryableExceptions []string) RetryPolicy {
	return &fixedIntervalPolicy{
		maxAttempts:         maxAttempts,
		initialInterval:     initialInterval,
		retryableExceptions: retryableExceptions,
	}
}

// fixedIntervalPolicy retries up to maxAttempts with a constant wait.
type fixedIntervalPolicy struct {
	maxAttempts         int
	initialInterval     time.Duration
	retryableExceptions []string
}

var _ RetryPolicy = (*fixedIntervalPolicy)(nil)

// GetMaxAttempts returns the maximum number of attempts.
func (p *fixedIntervalPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry determines if an error is retryable, first by the IsRetryable
// flag of BatchError and then by matching the configured error type names.
func (p *fixedIntervalPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if be, ok := err.(*exception.BatchError); ok && be.IsRetryable() {
		return true
	}

	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}

	return false
}

// GetBackoffInterval returns the fixed wait regardless of attempt number.
func (p *fixedIntervalPolicy) GetBackoffInterval(attempt int) time.Duration {
	return p.initialInterval
}
