package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/app"
	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/logger"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/queue"
	"github.com/unclebandit/mailflow/internal/service"
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
		zlog.Fatal("failed to start worker", zap.Error(err))
	}
	defer a.Close()

	metrics.InitEngineMetrics()

	if err := queue.StartScanSubscriber(a.Queue, cfg.ScanQueue, zlog, a.Scans.RunKind); err != nil {
		zlog.Fatal("failed to register consumer", zap.Error(err))
	}

	zlog.Info("worker running, waiting for scan jobs",
		zap.String("queue", cfg.ScanQueue),
		zap.Duration("interval", cfg.ScanInterval))
	service.NewWorker(a.Scans, cfg.ScanInterval, zlog.Named("worker")).Start(ctx)
	zlog.Info("worker stopped")
}
