package backend

import (
	"fmt"
	"time"

	"mgnregs/internal/config"
	"mgnregs/internal/services"
)

// Config holds configuration for backend creation
type Config struct {
	Publisher PublisherType

	// Upstream
	BaseURL         string
	ResourceID      string
	State           string
	UserAgent       string
	UpstreamTimeout time.Duration
	PrimaryLimit    int
	FallbackLimit   int

	// APIKey defaults to reading the environment on every call.
	APIKey services.KeyFunc

	// Result cache; a zero TTL disables it
	CacheTTL             time.Duration
	CacheSize            int
	CacheCleanupInterval time.Duration

	// AMQP specific
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	publisher := NoPublisher
	if appConfig.AMQPURL != "" {
		publisher = AMQPPublisher
	}

	return Config{
		Publisher: publisher,

		BaseURL:         appConfig.DataGovBaseURL,
		ResourceID:      appConfig.DataGovResourceID,
		State:           appConfig.StateName,
		UserAgent:       appConfig.UserAgent,
		UpstreamTimeout: appConfig.UpstreamTimeout,
		PrimaryLimit:    appConfig.PrimaryLimit,
		FallbackLimit:   appConfig.FallbackLimit,

		APIKey: config.APIKey,

		CacheTTL:             appConfig.CacheTTL,
		CacheSize:            appConfig.CacheSize,
		CacheCleanupInterval: cleanupInterval(appConfig.CacheTTL),

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// cleanupInterval sweeps at half the TTL, clamped to [30s, 5m].
func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	interval := ttl / 2
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Publisher.IsValid() {
		return fmt.Errorf("invalid publisher type: %s", c.Publisher)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}
	if c.CacheTTL > 0 && c.CacheSize < 1 {
		return fmt.Errorf("cache size must be at least 1 when caching is enabled")
	}

	switch c.Publisher {
	case AMQPPublisher:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP URL is required for amqp publisher")
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP exchange and queue are required for amqp publisher")
		}
	case NoPublisher:
	}

	return nil
}
