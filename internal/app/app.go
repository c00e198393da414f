// Package app wires configuration into the repositories, engine and scan services
// shared by the server and the worker.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/db"
	"github.com/unclebandit/mailflow/internal/lock"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/queue"
	"github.com/unclebandit/mailflow/internal/repository"
	"github.com/unclebandit/mailflow/internal/service"
	"github.com/unclebandit/mailflow/internal/webhook"
)

type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *sql.DB
	Queue  queue.Queue
	Redis  *redis.Client

	Ingestion   *service.IngestionService
	Scans       *service.ScanService
	Automations *service.AutomationService
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	conn, err := db.Open(ctx, db.Options{
		DSN:           cfg.DatabaseURL,
		MaxOpenConns:  cfg.DBMaxOpenConns,
		RetryAttempts: cfg.DBConnectRetries,
		RetryInterval: cfg.DBRetryInterval,
	}, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, DB: conn}

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, conn, log); err != nil {
			a.Close()
			return nil, err
		}
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		a.Redis, err = lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedisLocker(a.Redis)
	}

	if cfg.AMQPURL != "" {
		a.Queue, err = queue.NewAMQPQueue(cfg.AMQPURL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	} else {
		a.Queue = queue.NewInMemoryQueue(log)
	}

	campaigns := &repository.CampaignRepository{DB: conn}
	automations := &repository.AutomationRepository{DB: conn}
	emailLogs := &repository.EmailLogRepository{DB: conn}
	events := &repository.WebhookEventRepository{DB: conn}
	automationLogs := &repository.AutomationLogRepository{DB: conn}
	contacts := &repository.ContactRepository{DB: conn}
	suppressions := &repository.SuppressionRepository{DB: conn}
	reengagements := &repository.ReEngagementRepository{DB: conn}

	sender := webhook.NewSender(webhook.Options{
		Timeout:    cfg.OutboundWebhookTimeout,
		MaxRetries: cfg.OutboundWebhookMaxRetries,
		Backoff:    cfg.OutboundWebhookBackoff,
		Secret:     cfg.OutboundWebhookSecret,
		OnAttempt: func(at webhook.Attempt) {
			status := "ok"
			if at.Err != nil {
				status = "error"
			}
			metrics.OutboundWebhookDuration.WithLabelValues(status).Observe(at.Duration.Seconds())
		},
	})

	engine := &service.Engine{
		AutomationRepo: automations,
		LogRepo:        automationLogs,
		Sender:         sender,
		Log:            log.Named("engine"),
	}

	a.Ingestion = &service.IngestionService{
		CampaignRepo:    campaigns,
		EmailLogRepo:    emailLogs,
		EventRepo:       events,
		ContactRepo:     contacts,
		SuppressionRepo: suppressions,
		Matcher:         &service.Matcher{AutomationRepo: automations},
		Engine:          engine,
		Log:             log.Named("ingestion"),
	}
	a.Scans = &service.ScanService{
		Scheduled: &service.ScheduledScanner{
			AutomationRepo: automations,
			EmailLogRepo:   emailLogs,
			EventRepo:      events,
			Engine:         engine,
			Log:            log.Named("scheduler"),
		},
		Reengagement: &service.ReengagementTracker{
			EmailLogRepo:     emailLogs,
			ContactRepo:      contacts,
			ReEngagementRepo: reengagements,
			Log:              log.Named("reengagement"),
		},
		Locker:  locker,
		LockTTL: cfg.ScanLockTTL,
		Log:     log.Named("scans"),
	}
	a.Automations = &service.AutomationService{AutomationRepo: automations, LogRepo: automationLogs}
	return a, nil
}

func (a *App) Close() {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Log.Warn("error during shutdown", zap.Error(err))
	}
}
