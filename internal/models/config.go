package models

import "time"

// Config holds the application configuration
type Config struct {
	Provider   ProviderConfig   `json:"provider"`
	Database   DatabaseConfig   `json:"database"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Scheduling SchedulingConfig `json:"scheduling"`
	Polling    PollingConfig    `json:"polling"`
	Retry      RetryConfig      `json:"retry"`
	Server     ServerConfig     `json:"server"`
	Tracing    TracingConfig    `json:"tracing"`
	LogLevel   string           `json:"log_level"`
}

// ProviderConfig holds calendar/mail provider related configurations
type ProviderConfig struct {
	APIBaseURL    string        `json:"api_base_url"`
	Timeout       time.Duration `json:"timeout_ms"`
	RetryCount    int           `json:"retry_count"`
	WebhookSecret string        `json:"webhook_secret"`
	StreamURL     string        `json:"stream_url"`
	StreamEnabled bool          `json:"streamEnabled"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// DispatchConfig governs the dispatch loop and rate limiting.
type DispatchConfig struct {
	TickIntervalSec    int    `json:"tickIntervalSec"`
	GlobalDailyCap     int    `json:"globalDailyCap"`
	PerAccountDailyCap int    `json:"perAccountDailyCap"`
	CooldownMinutes    int    `json:"cooldownMinutes"`
	ProviderTimeoutSec int    `json:"providerTimeoutSec"`
	ReferenceTimezone  string `json:"referenceTimezone"`
	StartActive        bool   `json:"startActive"`
}

// SchedulingConfig holds slot generation defaults.
type SchedulingConfig struct {
	MinGapMinutes      int    `json:"minGapMinutes"`
	StaleCleanupHours  int    `json:"staleCleanupHours"`
	DefaultDurationMin int    `json:"defaultDurationMinutes"`
	AllowDoubleBooking bool   `json:"allowDoubleBooking"`
	MaxDoubleBookings  int    `json:"maxDoubleBookingsPerSlot"`
	FallbackPolicy     string `json:"fallbackPolicy"`
}

// PollingConfig drives the response polling loop.
type PollingConfig struct {
	Enabled     bool `json:"enabled"`
	IntervalSec int  `json:"intervalSec"`
	TimeoutSec  int  `json:"timeoutSec"`
	BatchSize   int  `json:"batchSize"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Port            string `json:"port"`
	RateLimitPerMin int    `json:"rateLimitPerMin"`
	ReadTimeoutSec  int    `json:"readTimeoutSec"`
	WriteTimeoutSec int    `json:"writeTimeoutSec"`
}

// TracingConfig holds OpenTelemetry related configurations
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
