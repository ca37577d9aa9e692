package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"mgnregs/internal/cli"
	apphttp "mgnregs/internal/http"
	"mgnregs/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	result := cli.InitBackend(context.Background(), logger, cfg)

	srv := apphttp.NewServer(apphttp.ServerConfig{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	}, result.Backend)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.UpstreamTimeout*2 + 5*time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if !result.Backend.APIKeyConfigured() {
		logger.Warn("DATA_GOV_API_KEY is not set; queries will fail with missing_api_key until it is")
	}

	logger.Info("Starting mgnregs server",
		"port", cfg.Port,
		log.FieldOperation, log.OpStartup,
		"upstream", cfg.DataGovBaseURL,
		"path", apphttp.MonthlyPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
