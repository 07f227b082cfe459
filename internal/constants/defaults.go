package constants

// Default dispatch configuration values
const (
	DefaultTickIntervalSec    = 60
	DefaultGlobalDailyCap     = 200
	DefaultPerAccountDailyCap = 20
	DefaultCooldownMinutes    = 30
	DefaultProviderTimeoutSec = 30
	DefaultReferenceTimezone  = "UTC"
)

// Default slot generation values
const (
	DefaultMinGapMinutes        = 30
	DefaultEventDurationMinutes = 30
	DefaultStaleCleanupHours    = 24
	DefaultMaxDoubleBookings    = 1
)

// Default response polling values
const (
	DefaultPollIntervalSec = 300
	DefaultPollTimeoutSec  = 30
	DefaultPollBatchSize   = 50
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
)

// At-rest encryption of recipient PII
const (
	EncryptionSalt       = "calreach-db-salt-v1"
	EncryptionLookupSalt = "calreach-lookup-salt-v1"
)

// Default server values
const (
	DefaultServerPort            = 8084
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRateLimitPerMin       = 120
	ServerErrorChannelSize       = 1
	MaxWebhookBodyBytes          = 1 << 20
)
