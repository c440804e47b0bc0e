package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewExternalError("BACKEND_UNAVAILABLE", "backend request failed")
	assert.Equal(t, "BACKEND_UNAVAILABLE: backend request failed", err.Error())

	err = err.WithCause(context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "caused by: context deadline exceeded")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("refresh: %w", NewNotFoundError("alert"))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeNotFound, appErr.Type)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	ext := NewExternalError("BACKEND_ERROR", "boom")
	assert.Same(t, ext, From(fmt.Errorf("wrap: %w", ext)))

	internal := From(fmt.Errorf("plain"))
	assert.Equal(t, ErrorTypeInternal, internal.Type)
	assert.True(t, internal.Retryable)
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType(NewRateLimitError("slow down"), ErrorTypeRateLimited))
	assert.False(t, IsType(NewRateLimitError("slow down"), ErrorTypeExternal))
	assert.False(t, IsType(nil, ErrorTypeExternal))
}
