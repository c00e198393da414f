package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	ScanScheduled    = "scheduled"
	ScanReengagement = "reengagement"
)

// ScanJob asks a worker to run one scan.
type ScanJob struct {
	Kind        string    `json:"kind"`
	RequestedAt time.Time `json:"requested_at"`
}

func ValidScanKind(kind string) bool {
	return kind == ScanScheduled || kind == ScanReengagement
}

// StartScanSubscriber runs every ScanJob published on topic through run.
func StartScanSubscriber(q Queue, topic string, log *zap.Logger, run func(ctx context.Context, kind string) error) error {
	return q.Subscribe(topic, func(ctx context.Context, body []byte) error {
		var job ScanJob
		if err := json.Unmarshal(body, &job); err != nil {
			log.Warn("invalid scan job, dropping", zap.Error(err))
			return nil
		}
		if !ValidScanKind(job.Kind) {
			log.Warn("unknown scan kind, dropping", zap.String("kind", job.Kind))
			return nil
		}

		log.Info("processing scan job", zap.String("kind", job.Kind), zap.Time("requested_at", job.RequestedAt))
		if err := run(ctx, job.Kind); err != nil {
			return fmt.Errorf("scan %s: %w", job.Kind, err)
		}
		return nil
	})
}
