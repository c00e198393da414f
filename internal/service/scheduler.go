package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

// DefaultScanBatchSize caps the rows one scan pass handles per automation or per run.
const DefaultScanBatchSize = 100

type AutomationScanResult struct {
	AutomationID   uuid.UUID     `json:"automation_id"`
	AutomationName string        `json:"automation_name"`
	Trigger        model.Trigger `json:"trigger"`
	Processed      int           `json:"processed"`
	Completed      int           `json:"completed"`
	Failed         int           `json:"failed"`
	Errors         []string      `json:"errors"`
}

type ScheduledSummary struct {
	AutomationsChecked     int                    `json:"automations_checked"`
	TotalContactsProcessed int                    `json:"total_contacts_processed"`
	Results                []AutomationScanResult `json:"results"`
}

// ScheduledScanner fires time-based automations for email logs whose delay has elapsed.
type ScheduledScanner struct {
	AutomationRepo repository.AutomationRepositoryInterface
	EmailLogRepo   repository.EmailLogRepositoryInterface
	EventRepo      repository.WebhookEventRepositoryInterface
	Engine         *Engine
	Log            *zap.Logger
	Now            func() time.Time
	BatchSize      int
}

func (s *ScheduledScanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ScheduledScanner) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultScanBatchSize
	}
	return s.BatchSize
}

// Run scans every enabled time-based automation. Per-item failures are collected in the
// results; only failing to list automations aborts the run.
func (s *ScheduledScanner) Run(ctx context.Context) (*ScheduledSummary, error) {
	automations, err := s.AutomationRepo.ListEnabledByTriggers(ctx, model.TimeBasedTriggers)
	if err != nil {
		return nil, fmt.Errorf("list time-based automations: %w", err)
	}

	summary := &ScheduledSummary{
		AutomationsChecked: len(automations),
		Results:            make([]AutomationScanResult, 0, len(automations)),
	}
	for _, a := range automations {
		result := s.scanAutomation(ctx, a)
		summary.TotalContactsProcessed += result.Processed
		summary.Results = append(summary.Results, result)
	}

	s.Log.Info("scheduled automation scan finished",
		zap.Int("automations_checked", summary.AutomationsChecked),
		zap.Int("total_contacts_processed", summary.TotalContactsProcessed))
	return summary, nil
}

type scheduledPayload struct {
	AutomationID uuid.UUID     `json:"automation_id"`
	EmailLogID   uuid.UUID     `json:"email_log_id"`
	Trigger      model.Trigger `json:"trigger"`
	Delay        string        `json:"delay,omitempty"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
	Cutoff       time.Time     `json:"cutoff"`
}

func (s *ScheduledScanner) scanAutomation(ctx context.Context, a *model.Automation) AutomationScanResult {
	result := AutomationScanResult{AutomationID: a.ID, AutomationName: a.Name, Trigger: a.Trigger, Errors: []string{}}
	log := s.Log.With(zap.String("automation_id", a.ID.String()), zap.String("trigger", string(a.Trigger)))

	now := s.now()
	cutoff := now.Add(-model.DelayDuration(a.Delay))
	logs, err := s.EmailLogRepo.ListDueForTrigger(ctx, a, cutoff, s.batchSize())
	if err != nil {
		log.Error("failed to list due email logs", zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	tally := NewTally()
	for _, l := range logs {
		payload, _ := json.Marshal(scheduledPayload{
			AutomationID: a.ID,
			EmailLogID:   l.ID,
			Trigger:      a.Trigger,
			Delay:        a.Delay,
			SentAt:       l.SentAt,
			Cutoff:       cutoff,
		})
		campaignID := l.CampaignID
		event := &model.WebhookEvent{
			CampaignID:  &campaignID,
			EventType:   model.ScheduledEventPrefix + string(a.Trigger),
			Email:       l.Email,
			RecipientID: l.RecipientID,
			DedupKey:    model.ScheduledDedupKey(a.ID, l.ID),
			Payload:     payload,
		}
		if _, err := s.EventRepo.CreateOrGet(ctx, event); err != nil {
			log.Error("failed to store scheduled event", zap.String("email_log_id", l.ID.String()), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("email log %s: %v", l.ID, err))
			continue
		}

		outcome, err := s.Engine.Execute(ctx, Execution{
			Automation:     a,
			WebhookEventID: event.ID,
			Trigger:        a.Trigger,
			CampaignID:     l.CampaignID,
			Email:          l.Email,
			RecipientID:    l.RecipientID,
			TriggeredAt:    now,
		}, tally)
		switch outcome {
		case OutcomeSkipped:
			continue
		case OutcomeAborted:
			// left unprocessed so the next scan picks the log up again
			result.Errors = append(result.Errors, fmt.Sprintf("email log %s: %v", l.ID, err))
			continue
		case OutcomeCompleted:
			result.Processed++
			result.Completed++
		case OutcomeFailed:
			result.Processed++
			result.Failed++
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("email log %s: %v", l.ID, err))
			}
		}

		if err := s.EventRepo.MarkProcessed(ctx, event.ID, s.now()); err != nil {
			log.Warn("failed to mark scheduled event processed", zap.Error(err))
		}
	}

	triggered, completed := tally.Counts(a.ID)
	if err := tally.Flush(ctx, s.AutomationRepo, a.ID); err != nil {
		log.Error("failed to update automation counters", zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
	}

	metrics.ScanItemsTotal.WithLabelValues("scheduled", "completed").Add(float64(result.Completed))
	metrics.ScanItemsTotal.WithLabelValues("scheduled", "failed").Add(float64(result.Failed))
	log.Info("automation scanned",
		zap.Int("eligible", len(logs)),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("triggered_delta", triggered),
		zap.Int("completed_delta", completed))
	return result
}
