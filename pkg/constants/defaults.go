package constants

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec      = 30
	DefaultProviderRetryCount  = 3
	DefaultStreamPingSec       = 30
	DefaultStreamReconnectSec  = 5
	DefaultStreamMaxBackoffSec = 300
)

// Circuit breaker defaults for provider calls
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerResetSec    = 60
)
