package errors

import (
	"fmt"
	"time"
)

// Common error creators for frequent use cases

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key)
}

// NewCapacityError signals that a slot request exceeds generatable capacity.
func NewCapacityError(requested, capacity int) *AppError {
	return New(ErrCodeCapacityExceeded,
		fmt.Sprintf("requested %d slots but window capacity is %d", requested, capacity)).
		WithContext("requested", requested).
		WithContext("capacity", capacity)
}

// NewAccountIneligibleError signals that no sending account can take a job
// right now. Always retryable: the caller reschedules instead of failing.
func NewAccountIneligibleError(nextEligibleAt time.Time) *AppError {
	appErr := WrapRetryable(nil, ErrCodeAccountIneligible, "no sending account currently eligible")
	return appErr.WithContext("next_eligible_at", nextEligibleAt.Format(time.RFC3339))
}

// NewCollisionError signals a booking conflict under the manual fallback
// policy, requiring operator action.
func NewCollisionError(accountID string, start time.Time) *AppError {
	return New(ErrCodeCollisionUnresolved, "booking collision requires manual resolution").
		WithContext("account_id", accountID).
		WithContext("start_time", start.Format(time.RFC3339))
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}

// NewProviderError creates an error for calendar/mail provider calls
func NewProviderError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeProviderAPI, "provider API call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}

	return appErr
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration time.Duration) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration.String())
}

// NewUnresolvedWebhookError marks a push payload that could not be matched
// to a known invite.
func NewUnresolvedWebhookError(eventID, reason string) *AppError {
	return New(ErrCodeUnresolvedWebhook, reason).
		WithContext("event_id", eventID)
}
