// Package handler exposes the monthly query endpoint as a serverless
// function.
package handler

import (
	"context"
	"net/http"
	"sync"

	"mgnregs/internal/backend"
	"mgnregs/internal/config"
	"mgnregs/internal/core"
	apphttp "mgnregs/internal/http"
	"mgnregs/internal/log"
	"mgnregs/internal/middleware/trace"
	"mgnregs/internal/services"
)

var (
	initOnce sync.Once
	served   http.Handler
)

// Handler serves GET /api/mgnregs/chhattisgarh/monthly. The service stack
// is built on the first invocation and reused while the instance is warm.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		served = build(context.Background())
	})
	served.ServeHTTP(w, r)
}

// build never fails: when the stack cannot be created every request still
// gets its validation and missing-key answers, and server_error otherwise.
func build(ctx context.Context) http.Handler {
	cfg := config.Load()
	logCfg := log.DefaultConfig()
	logCfg.Level = cfg.SlogLevel()
	logCfg.Format = cfg.LogFormat
	if logCfg.Format != "json" {
		logCfg.Format = "text"
	}
	logger := log.New(logCfg)
	tracer := trace.NewMiddleware(func(r *http.Request) string { return r.RemoteAddr }, logger)

	service, err := newService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize monthly service", log.FieldError, err)
		return tracer.Middleware(apphttp.NewMonthlyHandler(unavailable{err: err}))
	}
	return tracer.Middleware(apphttp.NewMonthlyHandler(service))
}

func newService(ctx context.Context, cfg *config.Config, logger *log.Logger) (apphttp.Querier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, err
	}
	return result.Backend, nil
}

// unavailable answers queries when the service could not be built. Input
// validation and the API key check keep their usual precedence.
type unavailable struct {
	err error
}

func (u unavailable) Query(_ context.Context, q core.MonthlyQuery) (services.MonthlyResult, error) {
	if _, err := q.Translate(); err != nil {
		return services.MonthlyResult{}, err
	}
	if config.APIKey() == "" {
		return services.MonthlyResult{}, services.ErrMissingAPIKey
	}
	return services.MonthlyResult{}, u.err
}
