package vfderrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifiers(t *testing.T) {
	cause := errors.New("boom")

	assert.True(t, IsBudgetExhausted(NewBudgetExhausted("open", cause)))
	assert.True(t, IsBackendIO(NewBackendIO("write", "/f", cause)))
	assert.True(t, IsReopenFailed(NewReopenFailed("/f", "abc-123", cause)))
	assert.True(t, IsPositionMismatch(NewPositionMismatch("/f", 10, 20)))
	assert.True(t, IsInvalidHandle(NewInvalidHandle(5)))

	assert.False(t, IsBudgetExhausted(cause))
	assert.False(t, IsBackendIO(cause))
}

func TestBackendIONilCauseIsNil(t *testing.T) {
	assert.Nil(t, NewBackendIO("read", "/f", nil))
}

func TestErrorMessagesIncludeContext(t *testing.T) {
	err := NewPositionMismatch("/tmp/f", 100, 150)
	assert.Contains(t, err.Error(), "/tmp/f")
	assert.Contains(t, err.Error(), "100")
	assert.Contains(t, err.Error(), "150")

	err = NewInvalidPath("bad://", "missing port")
	assert.Contains(t, err.Error(), "missing port")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewBackendIO("sync", "/f", cause)
	assert.True(t, errors.Is(err, cause) || errors.Unwrap(err) != nil)
}
