package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// File paths
	DBPath       string
	FeedsCSVPath string

	// Server settings
	ServerHost string
	ServerPort int
	BaseURL    string

	// Processing settings
	WorkerCount int

	// Notification settings
	RedisAddr    string
	NotifyPrefix string

	// Optional credentials for the short-post proxy used when fetching
	// reply context from social silos.
	TweetProxyKey    string
	TweetProxySecret string

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		DBPath:           DefaultDBPath,
		FeedsCSVPath:     DefaultFeedsCSVPath,
		ServerHost:       DefaultServerHost,
		ServerPort:       DefaultServerPort,
		BaseURL:          GetEnvString("READER_BASE_URL", DefaultBaseURL),
		WorkerCount:      DefaultWorkerCount,
		RedisAddr:        GetEnvString("READER_REDIS_ADDR", DefaultRedisAddr),
		NotifyPrefix:     GetEnvString("READER_NOTIFY_PREFIX", DefaultNotifyPrefix),
		TweetProxyKey:    GetEnvString("READER_TWEET_PROXY_KEY", ""),
		TweetProxySecret: GetEnvString("READER_TWEET_PROXY_SECRET", ""),
		LogLevel:         logLevel,
	}
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
