package notifications

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable error",
			err:      NewRetryableError(errors.New("temporary error")),
			expected: true,
		},
		{
			name:     "non-retryable error",
			err:      NewNonRetryableError(errors.New("permanent error")),
			expected: false,
		},
		{
			name:     "wrapped non-retryable error",
			err:      fmt.Errorf("deliver: %w", NewNonRetryableError(ErrNoProvider)),
			expected: false,
		},
		{
			name:     "generic error defaults to retryable",
			err:      errors.New("unknown error"),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRetryableError(t *testing.T) {
	originalErr := errors.New("original error")

	t.Run("retryable error", func(t *testing.T) {
		err := NewRetryableError(originalErr)

		assert.Equal(t, "original error", err.Error())
		assert.True(t, err.IsRetryable())
		assert.Equal(t, originalErr, errors.Unwrap(err))
	})

	t.Run("non-retryable error", func(t *testing.T) {
		err := NewNonRetryableError(originalErr)

		assert.Equal(t, "original error", err.Error())
		assert.False(t, err.IsRetryable())
		assert.Equal(t, originalErr, errors.Unwrap(err))
	})
}

func TestMissingVariablesError(t *testing.T) {
	err := &MissingVariablesError{TemplateID: "tour_update", Names: []string{"tourName", "message"}}

	assert.ErrorIs(t, err, ErrMissingVariables)
	assert.Equal(t, "template tour_update: missing variables: tourName, message", err.Error())

	var mve *MissingVariablesError
	assert.True(t, errors.As(fmt.Errorf("send: %w", err), &mve))
	assert.Equal(t, []string{"tourName", "message"}, mve.Names)
	assert.Equal(t, map[string][]string{"missing_variables": {"tourName", "message"}}, mve.Details())
}
