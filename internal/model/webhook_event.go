package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Canonical delivery event types. Generic payloads may omit the "email." prefix.
const (
	EventSent            = "email.sent"
	EventDelivered       = "email.delivered"
	EventOpened          = "email.opened"
	EventClicked         = "email.clicked"
	EventBounced         = "email.bounced"
	EventComplained      = "email.complained"
	EventReplied         = "email.replied"
	EventDeliveryDelayed = "email.delivery_delayed"

	ScheduledEventPrefix = "scheduled."
)

type WebhookEvent struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	CampaignID  *uuid.UUID      `db:"campaign_id" json:"campaign_id,omitempty"`
	EventType   string          `db:"event_type" json:"event_type"`
	Email       string          `db:"email" json:"email"`
	RecipientID *uuid.UUID      `db:"recipient_id" json:"recipient_id,omitempty"`
	DedupKey    string          `db:"dedup_key" json:"dedup_key,omitempty"`
	Payload     json.RawMessage `db:"payload" json:"payload,omitempty"`
	Processed   bool            `db:"processed" json:"processed"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// ScheduledDedupKey identifies the synthesized event for one (automation, email log) pair.
func ScheduledDedupKey(automationID, emailLogID uuid.UUID) string {
	return ScheduledDedupPrefix(automationID) + emailLogID.String()
}

func ScheduledDedupPrefix(automationID uuid.UUID) string {
	return "scheduled:" + automationID.String() + ":"
}

// DeliveryDedupKey identifies an inbound provider delivery by its delivery id.
func DeliveryDedupKey(deliveryID string) string {
	return "delivery:" + deliveryID
}
