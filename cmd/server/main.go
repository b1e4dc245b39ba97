package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/config"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/db"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/httpapi"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/ingest"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/metrics"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/session"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/store"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/upstream/meow"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/webhook"
)

// drainGrace is how long workers get to flush their final batches
const drainGrace = 300 * time.Millisecond

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "baileys-gateway").Logger()

	// Pretty logging for local dev (only when explicitly set to "dev")
	if os.Getenv("ENV") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	cfg, err := config.Load(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	cfg.LogConfig(log.Logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("data dir unavailable")
	}
	if err := os.MkdirAll(cfg.SessionsDir, 0o700); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.SessionsDir).Msg("sessions dir unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	st := store.NewPostgres(pool)

	// Metrics
	promReg := prometheus.NewRegistry()
	reg := metrics.New(promReg)

	// Ingestion pipeline
	ingestSvc, err := ingest.NewService(ingest.ServiceConfig{
		LogPath:        cfg.LogPath,
		CheckpointPath: cfg.CheckpointPath,
		DLQPath:        cfg.DLQPath,
		QueueCapacity:  cfg.QueueCapacity,
		Pool: ingest.PoolConfig{
			Workers:          cfg.Workers,
			BatchSize:        cfg.BatchSize,
			BatchMaxWait:     cfg.BatchMaxWait(),
			RetryBase:        cfg.RetryBase(),
			RetryMax:         cfg.RetryMax(),
			RetryMaxAttempts: cfg.RetryMaxAttempts,
			RetryMaxHorizon:  cfg.RetryMaxHorizon(),
		},
	}, st, reg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ingestion pipeline")
	}
	ingestSvc.Start(ctx)

	// Webhook dispatcher and tenant sessions
	dispatcher := webhook.NewDispatcher(st, reg, log.Logger)
	dialer := meow.NewDialer(log.Logger)
	manager := session.NewManager(cfg.SessionsDir, dialer, st, ingestSvc, dispatcher, log.Logger)

	// Reconnect every tenant whose credentials survived the restart
	go manager.AutoConnectAll(ctx)

	// Operational HTTP surface
	srv := &httpapi.Server{
		Store:              st,
		Metrics:            reg,
		PromReg:            promReg,
		QueueDepth:         ingestSvc.QueueDepth,
		ReadyMaxQueueDepth: cfg.ReadyMaxQueueDepth,
	}
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	manager.Shutdown()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainGrace)
	ingestSvc.Shutdown(drainCtx)
	drainCancel()

	log.Info().Msg("server stopped")
}
