package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wa-cobranzas/internal/batch"
	"wa-cobranzas/internal/cache"
	"wa-cobranzas/internal/config"
	"wa-cobranzas/internal/httpserver"
	"wa-cobranzas/internal/logging"
	"wa-cobranzas/internal/messaging"
	"wa-cobranzas/internal/metrics"
	"wa-cobranzas/internal/repo"
	"wa-cobranzas/internal/session"
	"wa-cobranzas/internal/wa"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting wa-cobranzas", "env", cfg.AppEnv, "storage", cfg.StorageBackend, "agents", len(cfg.Agents))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	store, err := repo.Open(ctx, repo.Options{
		Backend:     cfg.StorageBackend,
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DatabaseSchema,
		SQLitePath:  cfg.SQLitePath,
		Redis: cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		},
		Metrics: metricRegistry,
	}, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	var sender messaging.Sender
	if cfg.WhatsAppEnabled {
		waClient, err := wa.New(ctx, wa.Config{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
			Metrics:   metricRegistry,
		}, logger)
		if err != nil {
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		defer waClient.Close()

		waCtx, waCancel := context.WithCancel(ctx)
		defer waCancel()
		go func() {
			if err := waClient.Start(waCtx); err != nil {
				logger.Error("whatsapp client stopped, reminders fall back to links", "error", err)
			}
		}()
		sender = waClient
	} else {
		logger.Info("whatsapp delivery disabled, reminders are returned as links")
	}
	channel := messaging.NewFallbackChannel(sender, cfg.WhatsAppEndpoint, metricRegistry, logger)

	sessions := session.NewManager(session.Options{
		Store:               store,
		Channel:             channel,
		Agents:              cfg.Agents,
		CompanyName:         cfg.CompanyName,
		Endpoint:            cfg.WhatsAppEndpoint,
		DefaultSenderNumber: cfg.DefaultSenderNumber,
		Location:            cfg.Location,
		Cooldown:            cfg.BatchCooldown,
		FinishDelay:         cfg.BatchFinishDelay,
		NewTicker:           batch.NewRealTicker,
		Metrics:             metricRegistry,
		Logger:              logger,
	})
	defer sessions.CloseAll()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, sessions, httpserver.Options{
		BasePath:    cfg.PublicBasePath,
		CORSOrigins: cfg.CORSOrigins,
		Ping:        store.Ping,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
