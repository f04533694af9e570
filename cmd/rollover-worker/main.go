// Command rollover-worker materializes each new month for every user on a
// cron schedule, copying the account defaults forward.
package main

import (
	"context"
	"os"
	"time"

	"github.com/zoeplatform/zoefinan/internal/cli"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/services"
	"github.com/zoeplatform/zoefinan/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig(os.Getenv("ZOEFINAN_CONFIG_FILE"))
	logger := cli.SetupLogger(cfg, log.ComponentRollover)
	logger.Info("Starting rollover-worker")

	ctx := context.Background()
	_, bcfg, backend := cli.OpenBackend(ctx, logger, cfg)
	if backend.Events == nil {
		logger.Info("AMQP disabled - rollovers will not trigger alerts")
	}

	processor := services.NewRolloverProcessor(backend.Store, core.NewMonthKeyService(time.Now),
		backend.Publisher(), cfg.Rollover.Concurrency, logger)

	scheduler, err := worker.NewRolloverScheduler(processor, cfg.Rollover.Schedule, time.Hour, logger)
	if err != nil {
		logger.Error("Invalid rollover schedule", log.FieldError, err)
		_ = backend.Close()
		os.Exit(1)
	}
	logger.Info("Rollover processor configured",
		"schedule", cfg.Rollover.Schedule,
		"concurrency", cfg.Rollover.Concurrency,
		log.FieldBackend, bcfg.Type.String())

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Rollover still running at shutdown", log.FieldError, err)
		}
		if err := backend.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	scheduler.Start(runCtx)

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Rollover-worker shutdown complete")
}
