package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"calreach/internal/constants"
	"calreach/internal/models"
	"calreach/internal/security"
)

var (
	ErrMissingProviderURL = models.ConfigError{Message: "missing calendar provider API URL"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Provider.APIBaseURL == "" {
		return ErrMissingProviderURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Dispatch.TickIntervalSec <= 0 {
		c.Dispatch.TickIntervalSec = constants.DefaultTickIntervalSec
	}
	if c.Dispatch.GlobalDailyCap <= 0 {
		c.Dispatch.GlobalDailyCap = constants.DefaultGlobalDailyCap
	}
	if c.Dispatch.PerAccountDailyCap <= 0 {
		c.Dispatch.PerAccountDailyCap = constants.DefaultPerAccountDailyCap
	}
	if c.Dispatch.PerAccountDailyCap > c.Dispatch.GlobalDailyCap {
		return models.ConfigError{Message: "per-account daily cap cannot exceed the global daily cap"}
	}
	if c.Dispatch.CooldownMinutes <= 0 {
		c.Dispatch.CooldownMinutes = constants.DefaultCooldownMinutes
	}
	if c.Dispatch.ProviderTimeoutSec <= 0 {
		c.Dispatch.ProviderTimeoutSec = constants.DefaultProviderTimeoutSec
	}
	if c.Dispatch.ReferenceTimezone == "" {
		c.Dispatch.ReferenceTimezone = constants.DefaultReferenceTimezone
	}

	if c.Scheduling.MinGapMinutes <= 0 {
		c.Scheduling.MinGapMinutes = constants.DefaultMinGapMinutes
	}
	if c.Scheduling.StaleCleanupHours <= 0 {
		c.Scheduling.StaleCleanupHours = constants.DefaultStaleCleanupHours
	}
	if c.Scheduling.DefaultDurationMin <= 0 {
		c.Scheduling.DefaultDurationMin = constants.DefaultEventDurationMinutes
	}
	if c.Scheduling.MaxDoubleBookings <= 0 {
		c.Scheduling.MaxDoubleBookings = constants.DefaultMaxDoubleBookings
	}
	if c.Scheduling.FallbackPolicy == "" {
		c.Scheduling.FallbackPolicy = string(models.FallbackSkip)
	}

	if c.Polling.IntervalSec <= 0 {
		c.Polling.IntervalSec = constants.DefaultPollIntervalSec
	}
	if c.Polling.TimeoutSec <= 0 {
		c.Polling.TimeoutSec = constants.DefaultPollTimeoutSec
	}
	if c.Polling.BatchSize <= 0 {
		c.Polling.BatchSize = constants.DefaultPollBatchSize
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Server.Port == "" {
		c.Server.Port = strconv.Itoa(constants.DefaultServerPort)
	}
	if c.Server.RateLimitPerMin <= 0 {
		c.Server.RateLimitPerMin = constants.DefaultRateLimitPerMin
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("CALREACH_PROVIDER_API_URL"); url != "" {
		c.Provider.APIBaseURL = url
	}

	// SECURITY: Webhook secrets should be set via environment variables
	if secret := os.Getenv("CALREACH_WEBHOOK_SECRET"); secret != "" {
		c.Provider.WebhookSecret = secret
	}

	if url := os.Getenv("CALREACH_PROVIDER_STREAM_URL"); url != "" {
		c.Provider.StreamURL = url
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if v := os.Getenv("CALREACH_GLOBAL_DAILY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Dispatch.GlobalDailyCap = n
		}
	}
	if v := os.Getenv("CALREACH_ACCOUNT_DAILY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Dispatch.PerAccountDailyCap = n
		}
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	// Check if we're in production mode
	isProduction := os.Getenv("CALREACH_ENV") == "production"

	if isProduction {
		// In production, webhook secrets are mandatory
		if c.Provider.WebhookSecret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set CALREACH_WEBHOOK_SECRET environment variable)"}
		}

		// Validate webhook secret strength
		if len(c.Provider.WebhookSecret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}

		// Warn about debug logging in production
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		// In development, warn if secrets are missing
		if c.Provider.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set CALREACH_WEBHOOK_SECRET environment variable for security.\n")
		}
	}

	return nil
}
