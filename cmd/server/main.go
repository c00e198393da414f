// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/app"
	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/controller"
	"github.com/unclebandit/mailflow/internal/handler"
	"github.com/unclebandit/mailflow/internal/logger"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	metrics.InitAPIMetrics()
	metrics.InitEngineMetrics()

	// without a broker the server runs queued scans itself
	if cfg.AMQPURL == "" {
		if err := queue.StartScanSubscriber(a.Queue, cfg.ScanQueue, zlog, a.Scans.RunKind); err != nil {
			zlog.Fatal("failed to subscribe to scan queue", zap.Error(err))
		}
	}

	webhookController, err := controller.NewWebhookController(a.Ingestion, cfg.InboundWebhookSecret, zlog.Named("webhooks"))
	if err != nil {
		zlog.Fatal("failed to build webhook controller", zap.Error(err))
	}
	scanHandler := &handler.ScanHandler{Scans: a.Scans, Queue: a.Queue, Topic: cfg.ScanQueue, Log: zlog}
	automationHandler := &handler.AutomationHandler{Service: a.Automations, Log: zlog}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.MetricsMiddleware)

	r.Get("/healthz", handler.Healthz(a.DB))
	r.Handle("/metrics", promhttp.Handler())

	// Inbound delivery events
	r.Post("/webhooks/email", webhookController.ProviderWebhook)
	r.Post("/webhooks/events", webhookController.GenericWebhook)

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireServiceKey(cfg.ServiceKey))

		// Scans
		r.Post("/scans/{kind}", scanHandler.RunScan)

		// Automation reads
		r.Get("/automations/{id}", automationHandler.GetAutomation)
		r.Get("/automations/{id}/logs", automationHandler.ListLogs)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server running", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
