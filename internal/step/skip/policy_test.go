package skip_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/step/skip"
)

func TestPolicy_ShouldSkip_BatchErrorFlag(t *testing.T) {
	p := skip.NewPolicy(2, nil)

	skippable := exception.NewBatchError("test", "bad record", nil, true, false)
	assert.True(t, p.ShouldSkip(skippable))

	fatal := exception.NewBatchError("test", "fatal", nil, false, false)
	assert.False(t, p.ShouldSkip(fatal))
}

func TestPolicy_ShouldSkip_ConfiguredExceptionNames(t *testing.T) {
	p := skip.NewPolicy(2, []string{"MalformedInputError"})

	assert.True(t, p.ShouldSkip(exception.ErrMalformedInput))
	assert.False(t, p.ShouldSkip(errors.New("unrelated failure")))
}

func TestPolicy_LimitZeroDisablesSkipping(t *testing.T) {
	p := skip.NewPolicy(0, nil)

	skippable := exception.NewBatchError("test", "bad record", nil, true, false)
	assert.False(t, p.ShouldSkip(skippable))
	assert.False(t, p.CanSkip())
}

func TestPolicy_LimitIsEnforced(t *testing.T) {
	p := skip.NewPolicy(2, nil)
	skippable := exception.NewBatchError("test", "bad record", nil, true, false)

	assert.True(t, p.ShouldSkip(skippable))
	p.IncrementSkipCount()
	assert.True(t, p.ShouldSkip(skippable))
	p.IncrementSkipCount()

	assert.False(t, p.ShouldSkip(skippable), "the limit is exhausted after two skips")
	assert.Equal(t, 2, p.GetSkipCount())
	assert.Equal(t, 2, p.GetSkipLimit())
}
