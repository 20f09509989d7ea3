package config

import "time"

// Constants defining default values for application configuration
const (
	DefaultDBPath = "./reader.db"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	// DefaultBaseURL is the externally reachable root of this service,
	// used to build per-feed hub callback URLs.
	DefaultBaseURL = "http://localhost:8080"

	DefaultWorkerCount = 4
	DefaultLogLevel    = "debug"

	DefaultRedisAddr    = "localhost:6379"
	DefaultNotifyPrefix = "reader_notify:"

	DefaultFeedsCSVPath = "./feeds.csv"
)

// Polling policy intervals. Feeds back off through the failure tiers and
// verified push feeds poll no more often than the push grace interval.
const (
	TickInterval       = 5 * time.Minute
	BaseUpdateInterval = time.Hour
	PushGraceInterval  = 24 * time.Hour

	HTTPTimeout = 30 * time.Second
)
