package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

const (
	SourceProvider = "provider"
	SourceGeneric  = "generic"
)

// InboundEvent is a delivery event decoded from either inbound endpoint.
type InboundEvent struct {
	Source    string
	EventType string
	// CampaignID or ProviderMessageID identifies the send.
	CampaignID        *uuid.UUID
	ProviderMessageID string
	Email             string
	RecipientID       *uuid.UUID
	// DeliveryID is the sender's id for this delivery; retries reuse it.
	DeliveryID    string
	BounceType    string
	BounceMessage string
	OccurredAt    *time.Time
	Payload       json.RawMessage
}

func (in *InboundEvent) Validate() error {
	if strings.TrimSpace(in.EventType) == "" {
		return appErrors.NewMissingField("event_type")
	}
	if in.CampaignID == nil && in.ProviderMessageID == "" {
		return appErrors.NewMissingField("campaign_id")
	}
	if strings.TrimSpace(in.Email) == "" {
		return appErrors.NewMissingField("email")
	}
	return nil
}

type IngestResult struct {
	EventID   uuid.UUID
	Duplicate bool
	DispatchSummary
}

// IngestionService records inbound delivery events and fires the automations they trigger.
type IngestionService struct {
	CampaignRepo    repository.CampaignRepositoryInterface
	EmailLogRepo    repository.EmailLogRepositoryInterface
	EventRepo       repository.WebhookEventRepositoryInterface
	ContactRepo     repository.ContactRepositoryInterface
	SuppressionRepo repository.SuppressionRepositoryInterface
	Matcher         *Matcher
	Engine          *Engine
	Log             *zap.Logger
	Now             func() time.Time
}

func (s *IngestionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Ingest validates in before writing anything. Once the webhook event row exists, later
// failures are logged and do not fail the call.
func (s *IngestionService) Ingest(ctx context.Context, in *InboundEvent) (*IngestResult, error) {
	if err := in.Validate(); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(in.Source, "unknown", "invalid").Inc()
		return nil, err
	}

	eventType := NormalizeEventType(in.EventType)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	now := s.now()
	occurredAt := now
	if in.OccurredAt != nil {
		occurredAt = *in.OccurredAt
	}

	log := s.Log.With(zap.String("event_type", eventType), zap.String("source", in.Source))

	emailLog := s.resolveEmailLog(ctx, log, in, email)
	campaignID := in.CampaignID
	if campaignID == nil && emailLog != nil {
		campaignID = &emailLog.CampaignID
	}
	recipientID := in.RecipientID
	if recipientID == nil && emailLog != nil {
		recipientID = emailLog.RecipientID
	}

	event := &model.WebhookEvent{
		CampaignID:  campaignID,
		EventType:   eventType,
		Email:       email,
		RecipientID: recipientID,
		Payload:     in.Payload,
	}
	if in.DeliveryID != "" {
		event.DedupKey = model.DeliveryDedupKey(in.DeliveryID)
	}
	created, err := s.EventRepo.CreateOrGet(ctx, event)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(in.Source, eventType, "error").Inc()
		return nil, fmt.Errorf("store webhook event: %w", err)
	}
	log = log.With(zap.String("webhook_event_id", event.ID.String()))
	if !created {
		log.Info("redelivered webhook event", zap.String("dedup_key", event.DedupKey))
	}

	result := &IngestResult{EventID: event.ID, Duplicate: !created}

	if emailLog != nil {
		s.applyToEmailLog(ctx, log, emailLog, eventType, occurredAt, in.BounceMessage)
	}

	if campaignID != nil {
		owner, err := s.CampaignRepo.GetOwner(ctx, *campaignID)
		switch {
		case err == nil:
			s.applyToContact(ctx, log, owner, email, eventType, in.BounceType, occurredAt)
			automations, err := s.Matcher.Match(ctx, eventType, owner)
			if err != nil {
				log.Error("failed to match automations", zap.Error(err))
				break
			}
			result.DispatchSummary = s.Engine.ExecuteAll(ctx, Execution{
				WebhookEventID: event.ID,
				EventType:      eventType,
				CampaignID:     *campaignID,
				Email:          email,
				RecipientID:    recipientID,
				TriggeredAt:    now,
			}, automations, &ImmediateCounter{AutomationRepo: s.Engine.AutomationRepo})
		case appErrors.IsNotFound(err):
			log.Warn("campaign not found, skipping automations", zap.String("campaign_id", campaignID.String()))
		default:
			log.Error("failed to resolve campaign owner", zap.Error(err))
		}
	}

	if err := s.EventRepo.MarkProcessed(ctx, event.ID, s.now()); err != nil {
		log.Error("failed to mark webhook event processed", zap.Error(err))
	}

	metrics.WebhookEventsTotal.WithLabelValues(in.Source, eventType, "processed").Inc()
	log.Info("webhook event processed",
		zap.Int("matched", result.Matched),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *IngestionService) resolveEmailLog(ctx context.Context, log *zap.Logger, in *InboundEvent, email string) *model.EmailLog {
	var (
		l   *model.EmailLog
		err error
	)
	if in.CampaignID != nil {
		l, err = s.EmailLogRepo.FindLatest(ctx, *in.CampaignID, email)
	} else {
		l, err = s.EmailLogRepo.FindByProviderMessageID(ctx, in.ProviderMessageID)
	}
	if err != nil {
		if appErrors.IsNotFound(err) {
			log.Info("no email log for event", zap.String("email", email))
		} else {
			log.Error("failed to load email log", zap.Error(err))
		}
		return nil
	}
	return l
}

// EmailLogUpdateFor maps a delivery event onto the email log. ok is false for event
// types that leave the log untouched.
func EmailLogUpdateFor(current model.EmailStatus, eventType string, at time.Time, bounceMessage string) (model.EmailLogUpdate, bool) {
	upd := model.EmailLogUpdate{}
	var next model.EmailStatus
	switch eventType {
	case model.EventSent:
		next, upd.SentAt = model.EmailStatusSent, &at
	case model.EventDelivered:
		next, upd.DeliveredAt = model.EmailStatusDelivered, &at
	case model.EventOpened:
		next, upd.OpenedAt = model.EmailStatusOpened, &at
	case model.EventClicked:
		next, upd.ClickedAt = model.EmailStatusClicked, &at
	case model.EventReplied:
		next, upd.RepliedAt = current, &at
	case model.EventBounced:
		next = model.EmailStatusBounced
		upd.ErrorMessage = bounceMessage
		if upd.ErrorMessage == "" {
			upd.ErrorMessage = "bounced"
		}
	case model.EventComplained:
		next = model.EmailStatusFailed
		upd.ErrorMessage = "recipient marked the email as spam"
	default:
		return upd, false
	}
	upd.Status = model.NextStatus(current, next)
	return upd, true
}

func (s *IngestionService) applyToEmailLog(ctx context.Context, log *zap.Logger, l *model.EmailLog, eventType string, at time.Time, bounceMessage string) {
	upd, ok := EmailLogUpdateFor(l.Status, eventType, at, bounceMessage)
	if !ok {
		return
	}
	if err := s.EmailLogRepo.ApplyUpdate(ctx, l.ID, upd); err != nil {
		log.Error("failed to update email log", zap.String("email_log_id", l.ID.String()), zap.Error(err))
	}
}

func isHardBounce(bounceType string) bool {
	switch strings.ToLower(bounceType) {
	case "hard", "permanent":
		return true
	}
	return false
}

func (s *IngestionService) applyToContact(ctx context.Context, log *zap.Logger, owner uuid.UUID, email, eventType, bounceType string, at time.Time) {
	var reason model.SuppressionReason
	switch {
	case eventType == model.EventOpened || eventType == model.EventClicked:
		if _, err := s.ContactRepo.RefreshEngagement(ctx, owner, email, at); err != nil {
			log.Error("failed to refresh contact engagement", zap.Error(err))
		}
		return
	case eventType == model.EventBounced && isHardBounce(bounceType):
		reason = model.SuppressionBounced
	case eventType == model.EventComplained:
		reason = model.SuppressionComplained
	default:
		return
	}

	if err := s.SuppressionRepo.Add(ctx, owner, email, reason); err != nil {
		log.Error("failed to add suppression", zap.Error(err))
		return
	}
	if err := s.ContactRepo.MarkSuppressed(ctx, owner, email); err != nil {
		log.Error("failed to mark contact suppressed", zap.Error(err))
	}
}
