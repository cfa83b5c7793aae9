// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-export/internal/application"
	"social-export/internal/config"
	"social-export/internal/infra/api"
	"social-export/internal/infra/db/postgres"
	"social-export/internal/infra/logging"
	"social-export/internal/infra/metrics"
	"social-export/internal/infra/scheduler"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer svc.Close()
	go postgres.ReportPoolStats(ctx, svc.Pool, 15*time.Second)

	// ---- Optional in-process trigger ----
	if cfg.Scheduler.Enabled {
		sch := scheduler.NewScheduler(cfg.Scheduler.Interval, cfg.Export.BatchSize, svc.Exports, logger)
		sch.Start(ctx)
		defer sch.Stop()
	}

	// ---- HTTP ----
	srv := api.NewServer(svc.Exports, api.NewAuthenticator(cfg.Server.JWTSecret), api.ServerConfig{
		CronSecret:     cfg.Server.CronSecret,
		BatchSize:      cfg.Export.BatchSize,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("version", version).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
}
