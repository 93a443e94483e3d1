package notifications

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors returned synchronously by SendNotification.
var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrMissingVariables  = errors.New("missing template variables")
	ErrNoEnabledChannels = errors.New("no enabled channels for user")
)

// Lookup errors.
var (
	ErrMessageNotFound    = errors.New("notification message not found")
	ErrPreferenceNotFound = errors.New("preference not found")
)

// Delivery and queue errors.
var (
	ErrNoProvider   = errors.New("no delivery provider configured")
	ErrQueueStopped = errors.New("queue stopped")
)

// MissingVariablesError lists required template variables absent from a send request.
type MissingVariablesError struct {
	TemplateID string
	Names      []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("template %s: missing variables: %s", e.TemplateID, strings.Join(e.Names, ", "))
}

// Details reports the missing names in API error responses.
func (e *MissingVariablesError) Details() any {
	return map[string][]string{"missing_variables": e.Names}
}

// Unwrap lets errors.Is match ErrMissingVariables.
func (e *MissingVariablesError) Unwrap() error {
	return ErrMissingVariables
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	// Default: retry unknown errors
	return true
}
