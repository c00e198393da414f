package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/queue"
)

// KindRunner runs one scan kind.
type KindRunner interface {
	RunKind(ctx context.Context, kind string) error
}

// Worker runs both scans on a fixed interval
type Worker struct {
	Scans    KindRunner
	Interval time.Duration
	Log      *zap.Logger
}

// Constructor
func NewWorker(scans KindRunner, interval time.Duration, log *zap.Logger) *Worker {
	return &Worker{
		Scans:    scans,
		Interval: interval,
		Log:      log,
	}
}

// Start runs a pass immediately and then on every tick until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	for _, kind := range []string{queue.ScanScheduled, queue.ScanReengagement} {
		if ctx.Err() != nil {
			return
		}
		if err := w.Scans.RunKind(ctx, kind); err != nil {
			w.Log.Error("periodic scan failed", zap.String("kind", kind), zap.Error(err))
		}
	}
}
