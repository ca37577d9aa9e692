package main

import (
	"context"
	"os"
	"time"

	"mgnregs/internal/amqp"
	"mgnregs/internal/cli"
	"mgnregs/internal/log"
	"mgnregs/internal/sheets"
	gsheet "mgnregs/internal/sheets/google"
	"mgnregs/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)

	logger.Info("Starting mgnregs-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}
	if err := cfg.ValidateStorage(); err != nil {
		logger.Error("Storage validation failed", log.FieldError, err)
		os.Exit(1)
	}

	store := cli.InitQueryLog(logger, cfg.SQLiteDBPath)
	defer store.Close()

	var mirror sheets.QueryLogSink
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.NewFromEnv(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		if err := sheetsClient.EnsureHeader(context.Background()); err != nil {
			logger.Error("Failed to prepare query log sheet", log.FieldError, err)
			os.Exit(1)
		}
		mirror = sheetsClient
		logger.Info("Google Sheets mirror initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	w := worker.NewQueryLogWorker(store, mirror, logger)
	if err := w.Run(ctx, amqpClient); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
