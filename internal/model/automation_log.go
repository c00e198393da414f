package model

import (
	"time"

	"github.com/google/uuid"
)

type AutomationLogStatus string

const (
	AutomationLogPending   AutomationLogStatus = "pending"
	AutomationLogCompleted AutomationLogStatus = "completed"
	AutomationLogFailed    AutomationLogStatus = "failed"
)

// AutomationLog is unique per (AutomationID, WebhookEventID).
type AutomationLog struct {
	ID             uuid.UUID           `db:"id" json:"id"`
	AutomationID   uuid.UUID           `db:"automation_id" json:"automation_id"`
	WebhookEventID uuid.UUID           `db:"webhook_event_id" json:"webhook_event_id"`
	Status         AutomationLogStatus `db:"status" json:"status"`
	ErrorMessage   string              `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
}
