package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/lock"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/queue"
)

const (
	scheduledLockKey    = "scan:scheduled"
	reengagementLockKey = "scan:reengagement"

	DefaultScanLockTTL = 5 * time.Minute
)

// ScanService runs each scan kind under its own lock so overlapping triggers never
// run the same scan twice at once.
type ScanService struct {
	Scheduled    *ScheduledScanner
	Reengagement *ReengagementTracker
	Locker       lock.Locker
	LockTTL      time.Duration
	Log          *zap.Logger
}

func (s *ScanService) withLock(ctx context.Context, kind, key string, run func(context.Context) error) error {
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = DefaultScanLockTTL
	}
	release, err := s.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			metrics.ScanRunsTotal.WithLabelValues(kind, "locked").Inc()
			return appErrors.ErrScanInProgress
		}
		metrics.ScanRunsTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("acquire %s lock: %w", kind, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.Log.Warn("failed to release scan lock", zap.String("kind", kind), zap.Error(err))
		}
	}()

	start := time.Now()
	err = run(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.ScanRunsTotal.WithLabelValues(kind, outcome).Inc()
	s.Log.Info("scan run", zap.String("kind", kind), zap.String("outcome", outcome), zap.Duration("duration", time.Since(start)))
	return err
}

func (s *ScanService) RunScheduled(ctx context.Context) (*ScheduledSummary, error) {
	var summary *ScheduledSummary
	err := s.withLock(ctx, queue.ScanScheduled, scheduledLockKey, func(ctx context.Context) error {
		var err error
		summary, err = s.Scheduled.Run(ctx)
		return err
	})
	return summary, err
}

func (s *ScanService) RunReengagement(ctx context.Context) (*ReengagementSummary, error) {
	var summary *ReengagementSummary
	err := s.withLock(ctx, queue.ScanReengagement, reengagementLockKey, func(ctx context.Context) error {
		var err error
		summary, err = s.Reengagement.Run(ctx)
		return err
	})
	return summary, err
}

// RunKind runs one scan for a queued job. A scan already in progress is not an error:
// the running pass covers the request.
func (s *ScanService) RunKind(ctx context.Context, kind string) error {
	var err error
	switch kind {
	case queue.ScanScheduled:
		_, err = s.RunScheduled(ctx)
	case queue.ScanReengagement:
		_, err = s.RunReengagement(ctx)
	default:
		return appErrors.NewInvalidField("kind", fmt.Sprintf("unknown scan kind %q", kind))
	}
	if errors.Is(err, appErrors.ErrScanInProgress) {
		s.Log.Info("scan already in progress, skipping", zap.String("kind", kind))
		return nil
	}
	return err
}
