package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	sqliteadapter "github.com/greenquote/payhook/internal/adapters/sqlite"
	"github.com/greenquote/payhook/internal/billing"
	"github.com/greenquote/payhook/internal/config"
	"github.com/greenquote/payhook/internal/db"
	"github.com/greenquote/payhook/internal/observability"
	"github.com/greenquote/payhook/internal/pool"
	"github.com/greenquote/payhook/internal/server"
	"github.com/greenquote/payhook/internal/server/routes"
	webhookbilling "github.com/greenquote/payhook/internal/webhooks/billing"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	log := slog.New(observability.WrapSlogHandler(
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOpenTelemetry(ctx, log, observability.OpenTelemetryConfig{
		Enabled:           cfg.Observability.Enabled,
		OTLPEndpoint:      cfg.Observability.OTLPEndpoint,
		OTLPTraceHeaders:  cfg.Observability.OTLPTraceHeaders,
		OTLPMetricHeaders: cfg.Observability.OTLPMetricHeaders,
		ServiceName:       cfg.Observability.ServiceName,
		ServiceVer:        cfg.Observability.ServiceVer,
		SamplingRatio:     cfg.Observability.SamplingRatio,
		MetricsConsole:    cfg.Observability.MetricsConsole,
	})
	if err != nil {
		return fmt.Errorf("setup observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down observability", "error", err)
		}
	}()

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	connPool, err := pool.New(ctx, database, pool.Config{
		MinConns:       cfg.Pool.MinConns,
		MaxConns:       cfg.Pool.MaxConns,
		AcquireTimeout: cfg.Pool.AcquireTimeout(),
		IdleTimeout:    cfg.Pool.IdleTimeout(),
		HealthInterval: cfg.Pool.HealthInterval(),
	}, log)
	if err != nil {
		return fmt.Errorf("start connection pool: %w", err)
	}
	defer func() {
		if err := connPool.Close(); err != nil {
			slog.Error("Failed to close connection pool", "error", err)
		}
	}()

	metrics, err := observability.NewPipelineMetrics()
	if err != nil {
		return fmt.Errorf("register pipeline metrics: %w", err)
	}

	store := sqliteadapter.NewStore(connPool)
	client := billing.NewClient(cfg.Billing.APIKey, cfg.Billing.APIBase, cfg.Billing.Timeout(), nil)
	verifier := webhookbilling.NewVerifier(cfg.Webhook.SecretForTenant, cfg.Webhook.Tolerance())
	handlers := webhookbilling.NewHandlers(store, client, log)
	pipeline := webhookbilling.NewPipeline(
		verifier,
		webhookbilling.NewRouter(handlers),
		webhookbilling.NewSupervisor(log),
		store, store, store,
		metrics,
		log,
	)

	srv := server.New(log)
	srv.RegisterRouter(routes.NewWebhookRoutes(pipeline))
	srv.RegisterRouter(routes.NewAdminRoutes(connPool, store))
	srv.RegisterRouter(routes.NewHealthRoutes(connPool))

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("Starting server", "port", cfg.Server.Port, "environment", cfg.Environment)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received, draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
