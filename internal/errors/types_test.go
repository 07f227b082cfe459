package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      New(ErrCodeInvalidConfig, "bad window"),
			expected: "INVALID_CONFIG: bad window",
		},
		{
			name:     "with cause",
			err:      Wrap(fmt.Errorf("boom"), ErrCodeProviderAPI, "send failed"),
			expected: "PROVIDER_API: send failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := Wrap(cause, ErrCodeDatabaseQuery, "query failed")
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(nil, ErrCodeAccountIneligible, "cooling down")))
	assert.False(t, IsRetryable(New(ErrCodeCollisionUnresolved, "manual")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeCapacityExceeded, GetCode(NewCapacityError(10, 5)))
	assert.Equal(t, ErrCodeInternalError, GetCode(fmt.Errorf("plain")))
}

func TestIs(t *testing.T) {
	inner := New(ErrCodeAccountIneligible, "none eligible")
	outer := Wrap(inner, ErrCodeInternalError, "tick failed")

	assert.True(t, Is(outer, ErrCodeAccountIneligible))
	assert.True(t, Is(outer, ErrCodeInternalError))
	assert.False(t, Is(outer, ErrCodeProviderAPI))
	assert.False(t, Is(nil, ErrCodeProviderAPI))
	assert.False(t, Is(fmt.Errorf("plain"), ErrCodeInternalError))
}

func TestNewAccountIneligibleError(t *testing.T) {
	next := time.Now().Add(30 * time.Minute)
	err := NewAccountIneligibleError(next)

	assert.Equal(t, ErrCodeAccountIneligible, err.Code)
	assert.True(t, err.Retryable)
	assert.Equal(t, next.Format(time.RFC3339), err.Context["next_eligible_at"])
}

func TestNewProviderError_Retryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{500, true},
		{429, true},
		{408, true},
		{400, false},
		{404, false},
	}

	for _, tt := range tests {
		err := NewProviderError("/events", tt.status, fmt.Errorf("status %d", tt.status))
		assert.Equal(t, tt.retryable, err.Retryable, "status %d", tt.status)
	}
}
