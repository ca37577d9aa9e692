// Package backend assembles the monthly query service shared by every
// entry point.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mgnregs/internal/amqp"
	"mgnregs/internal/cache"
	"mgnregs/internal/datagov"
	"mgnregs/internal/log"
	"mgnregs/internal/services"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentApp),
	}
}

// CreateBackend implements Factory.CreateBackend. A broker that cannot be
// reached is logged and the backend runs without event publishing.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	client := datagov.New(datagov.Config{
		BaseURL:    config.BaseURL,
		ResourceID: config.ResourceID,
		State:      config.State,
		UserAgent:  config.UserAgent,
		HTTPClient: httpClient(config),
		Logger:     f.logger,
	})

	svcConfig := services.MonthlyServiceConfig{
		Fetcher:       client,
		APIKey:        config.APIKey,
		PrimaryLimit:  config.PrimaryLimit,
		FallbackLimit: config.FallbackLimit,
		Logger:        f.logger,
	}

	var cleanups []CleanupFunc

	if config.CacheTTL > 0 {
		lru := cache.NewLRUCache[services.MonthlyResult](config.CacheSize, config.CacheTTL)
		manager := cache.NewManager(f.logger)
		manager.Register(lru)
		manager.StartCleanup(config.CacheCleanupInterval)
		svcConfig.Cache = lru
		cleanups = append(cleanups, func() error {
			manager.Stop()
			return nil
		})
		f.logger.InfoContext(ctx, "Initialized result cache",
			"ttl", config.CacheTTL.String(),
			"max_entries", config.CacheSize)
	}

	if config.Publisher == AMQPPublisher {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without query events",
				log.FieldError, err)
		} else {
			svcConfig.Publisher = amqpClient
			cleanups = append(cleanups, amqpClient.Close)
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	service := services.NewMonthlyService(svcConfig)

	f.logger.InfoContext(ctx, "Initialized monthly service",
		"publisher", config.Publisher.String(),
		"events_enabled", svcConfig.Publisher != nil,
		"cache_enabled", svcConfig.Cache != nil)

	return &BackendResult{
		Backend: service,
		Cleanup: cleanupAll(cleanups),
	}, nil
}

func httpClient(config Config) *http.Client {
	timeout := config.UpstreamTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return datagov.NewHTTPClient(timeout)
}

// cleanupAll runs every cleanup in reverse order and joins their errors.
func cleanupAll(fns []CleanupFunc) CleanupFunc {
	return func() error {
		var errs []error
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
