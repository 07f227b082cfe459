package service

import (
	"context"

	"calreach/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// SanitizeEmail masks a recipient address unless verbose logging is on.
func SanitizeEmail(ctx context.Context, email string) string {
	if IsVerboseLogging(ctx) {
		return email
	}
	return privacy.MaskEmail(email)
}

// SanitizeEventID shortens a provider event id unless verbose logging is on.
func SanitizeEventID(ctx context.Context, eventID string) string {
	if IsVerboseLogging(ctx) {
		return eventID
	}
	return privacy.MaskEventID(eventID)
}

// LogDispatch logs one dispatched job with appropriate privacy controls.
func LogDispatch(ctx context.Context, logger *logrus.Logger, jobID, accountID, recipient string) {
	logger.WithFields(logrus.Fields{
		LogFieldJobID:     jobID,
		LogFieldAccountID: accountID,
		LogFieldRecipient: SanitizeEmail(ctx, recipient),
	}).Info("Invite dispatched")
}
