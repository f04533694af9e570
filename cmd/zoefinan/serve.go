package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zoeplatform/zoefinan/internal/cli"
	"github.com/zoeplatform/zoefinan/internal/core"
	api "github.com/zoeplatform/zoefinan/internal/http"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/services"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			serve()
		},
	}
}

func serve() {
	cfg := cli.MustLoadConfig(configFile)
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx := context.Background()
	factory, bcfg, backend := cli.OpenBackend(ctx, logger, cfg)

	provider, err := factory.OpenAuth(ctx, bcfg, backend)
	if err != nil {
		logger.Error("Failed to initialize auth provider", log.FieldError, err, "provider", bcfg.AuthProvider)
		_ = backend.Close()
		os.Exit(1)
	}
	backend.Caches.StartCleanup(time.Minute)

	months := core.NewMonthKeyService(time.Now)
	opts := []services.LedgerOption{services.WithLedgerLogger(logger)}
	if pub := backend.Publisher(); pub != nil {
		opts = append(opts, services.WithEvents(pub))
	}
	ledger := services.NewLedgerService(backend.Store, months, opts...)

	srv := api.NewServer(":"+cfg.Server.Port, api.Deps{
		Ledger:             ledger,
		Auth:               provider,
		Checks:             backend.Checks,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		Logger:             logger,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.Server.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := backend.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting zoefinan server",
		"port", cfg.Server.Port,
		log.FieldBackend, bcfg.Type.String(),
		"auth", bcfg.AuthProvider,
		"current_month", string(months.CurrentMonthKey()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Server.Port)
		_ = backend.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
