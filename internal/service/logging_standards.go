package service

// Logging Standards for Calreach
//
// This file defines standard field names and log level usage so logging
// stays consistent across the application.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldJobID      = "job_id"
	LogFieldCampaignID = "campaign_id"
	LogFieldAccountID  = "account_id"
	LogFieldInviteID   = "invite_id"
	LogFieldEventID    = "event_id"
	LogFieldRecipient  = "recipient"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Request tracing
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Dispatch and scheduling fields
	LogFieldSlot       = "slot"
	LogFieldStatus     = "status"
	LogFieldRSVP       = "rsvp"
	LogFieldSource     = "source"
	LogFieldPolicy     = "policy"
	LogFieldDay        = "day"
	LogFieldSendsToday = "sends_today"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Error and debugging
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
	LogFieldReason     = "reason"
)

// Log Level Usage Guidelines
//
// DEBUG: Detailed information for diagnosing problems. Only use in development or verbose mode.
//   - Tick entry/exit and skip decisions
//   - Candidate slot evaluation
//   - Raw provider responses (sanitized)
//
// INFO: General information about application flow and key events.
//   - Application startup/shutdown
//   - Loops started/stopped
//   - Jobs dispatched, campaigns enqueued, daily counters reset
//
// WARN: Something unexpected happened, but the application can continue.
//   - Retryable provider errors
//   - Collision fallback behavior used
//   - Rate limiting triggered
//   - Webhook payloads that could not be resolved
//
// ERROR: Error events that might still allow the application to continue.
//   - Jobs marked failed
//   - Provider API errors after retries
//   - Persistence failures
