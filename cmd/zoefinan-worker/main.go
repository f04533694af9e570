// Command zoefinan-worker consumes ledger-change events, mails users whose
// month turned critical and exports month summaries to Google Sheets.
package main

import (
	"context"
	"os"
	"time"

	"github.com/zoeplatform/zoefinan/internal/cache"
	"github.com/zoeplatform/zoefinan/internal/cli"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/notify"
	"github.com/zoeplatform/zoefinan/internal/services"
	gsheet "github.com/zoeplatform/zoefinan/internal/sheets/google"
	"github.com/zoeplatform/zoefinan/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig(os.Getenv("ZOEFINAN_CONFIG_FILE"))
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting zoefinan-worker")

	if cfg.AMQP.URL == "" {
		logger.Error("AMQP URL is required for the worker")
		os.Exit(1)
	}

	ctx := context.Background()
	_, _, backend := cli.OpenBackend(ctx, logger, cfg)
	if backend.Events == nil {
		logger.Error("Failed to connect to the broker")
		_ = backend.Close()
		os.Exit(1)
	}

	var opts []services.AlertOption
	if cfg.SMTP.Host != "" {
		opts = append(opts, services.WithNotifier(notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger)))
		logger.Info("Critical health alerts enabled", "smtp_host", cfg.SMTP.Host)
	} else {
		logger.Info("Alert mail disabled - no SMTP host configured")
	}

	if cfg.Sheets.SpreadsheetID != "" {
		sheetsClient, err := gsheet.NewClient(ctx, gsheet.Options{
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			SheetName:       cfg.Sheets.SheetName,
			CredentialsFile: cfg.Sheets.CredsFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			_ = backend.Close()
			os.Exit(1)
		}
		opts = append(opts, services.WithSummaryExport(sheetsClient))
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.Sheets.SpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no spreadsheet ID provided")
	}

	// Replicas share the mailed-alert record through Redis when it is the cache.
	if cfg.Cache.Backend == "redis" {
		opts = append(opts, services.WithAlertMemory(cache.NewRedisCache[string](cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   "zoefinan:alert:",
			TTL:      24 * time.Hour,
		}, logger)))
	}

	processor := services.NewAlertProcessor(backend.Store, logger, opts...)
	backend.Caches.Register(processor.AlertMemory())
	backend.Caches.StartCleanup(10 * time.Minute)

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := backend.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := worker.RunLedgerConsumer(runCtx, backend.Events, processor.HandleLedgerChanged, logger); err != nil {
		logger.Error("Consumer failed", log.FieldError, err)
		_ = backend.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("zoefinan-worker shutdown complete")
}
