// Package skip decides whether a failed item is dropped from the run instead
// of failing the step, within a configured limit.
package skip

import (
	"github.com/tigerroll/ripple/internal/exception"
)

// SkipPolicy defines the logic for dropping failed items.
// It manages skippability, the skip limit, and the running skip count.
type SkipPolicy interface {
	// ShouldSkip determines if a given error is skippable under the current policy.
	// err: The error to evaluate.
	// Returns: true if the error is skippable, false otherwise.
	ShouldSkip(err error) bool
	// CanSkip determines if further skips remain within the limit.
	CanSkip() bool
	// IncrementSkipCount increments the count of skipped items by 1.
	IncrementSkipCount()
	// GetSkipCount returns the number of items skipped so far.
	GetSkipCount() int
	// GetSkipLimit returns the configured skip limit.
	GetSkipLimit() int
}

// NewPolicy creates a SkipPolicy.
//
// Parameters:
//
//	skipLimit: The maximum number of skips allowed. 0 disables skipping.
//	skippableExceptions: Registered error type names considered skippable.
func NewPolicy(skipLimit int, skippableExceptions []string) SkipPolicy {
	return &limitedSkipPolicy{
		skipLimit:           skipLimit,
		skippableExceptions: skippableExceptions,
	}
}

// limitedSkipPolicy skips matching errors until the limit is reached.
type limitedSkipPolicy struct {
	skipLimit           int
	skippableExceptions []string
	currentSkipCount    int
}

var _ SkipPolicy = (*limitedSkipPolicy)(nil)

// ShouldSkip determines if an error is skippable: the limit must not be
// exhausted, and the error must either carry the IsSkippable flag of
// BatchError or match one of the configured error type names.
func (p *limitedSkipPolicy) ShouldSkip(err error) bool {
	if err == nil {
		return false
	}

	if p.skipLimit == 0 {
		return false
	}
	if p.currentSkipCount >= p.skipLimit {
		return false
	}

	if be, ok := err.(*exception.BatchError); ok && be.IsSkippable() {
		return true
	}

	for _, typeName := range p.skippableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}

	return false
}

// CanSkip determines if further skips remain within the limit.
func (p *limitedSkipPolicy) CanSkip() bool {
	return p.skipLimit > 0 && p.currentSkipCount < p.skipLimit
}

// IncrementSkipCount increments the count of skipped items by 1.
func (p *limitedSkipPolicy) IncrementSkipCount() {
	p.currentSkipCount++
}

// GetSkipCount returns the number of items skipped so far.
func (p *limitedSkipPolicy) GetSkipCount() int {
	return p.currentSkipCount
}

// GetSkipLimit returns the configured skip limit.
func (p *limitedSkipPolicy) GetSkipLimit() int {
	return p.skipLimit
}
