package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"calreach/internal/constants"
)

// retryableDBOperationNoReturn runs operation, retrying transient SQLite
// failures with a growing backoff. Errors the predicate classifies as
// permanent fail immediately.
func retryableDBOperationNoReturn(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error

	maxAttempts := constants.DefaultDatabaseRetryAttempts
	initialBackoff := time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		if !isRetryableDBError(err) {
			return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxAttempts, lastErr)
}

// transientDBErrors are substrings of SQLite errors that a later attempt
// can plausibly succeed past. Matching is case sensitive, matching how the
// driver formats them.
var transientDBErrors = []string{
	"database is locked",
	"disk I/O error",
	"no such host",
	"connection refused",
}

func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	// A cancelled context stays cancelled no matter how often we retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()
	for _, substr := range transientDBErrors {
		if strings.Contains(errStr, substr) {
			return true
		}
	}

	// Constraint and schema errors, and anything unrecognized, are treated
	// as permanent.
	return false
}
