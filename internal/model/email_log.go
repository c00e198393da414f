package model

import (
	"time"

	"github.com/google/uuid"
)

type EmailStatus string

const (
	EmailStatusPending   EmailStatus = "pending"
	EmailStatusSent      EmailStatus = "sent"
	EmailStatusDelivered EmailStatus = "delivered"
	EmailStatusOpened    EmailStatus = "opened"
	EmailStatusClicked   EmailStatus = "clicked"
	EmailStatusBounced   EmailStatus = "bounced"
	EmailStatusFailed    EmailStatus = "failed"
)

var statusRank = map[EmailStatus]int{
	EmailStatusPending:   0,
	EmailStatusSent:      1,
	EmailStatusDelivered: 2,
	EmailStatusOpened:    3,
	EmailStatusClicked:   4,
}

func (s EmailStatus) IsTerminal() bool {
	return s == EmailStatusBounced || s == EmailStatusFailed
}

// NextStatus returns the status an email log should hold after observing next.
// Happy-path statuses only move forward; bounced and failed can be entered from
// any non-terminal status and are never left.
func NextStatus(current, next EmailStatus) EmailStatus {
	if current.IsTerminal() {
		return current
	}
	if next.IsTerminal() {
		return next
	}
	cur, ok := statusRank[current]
	if !ok {
		return next
	}
	nxt, ok := statusRank[next]
	if !ok || nxt <= cur {
		return current
	}
	return next
}

type EmailLog struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	CampaignID        uuid.UUID   `db:"campaign_id" json:"campaign_id"`
	RecipientID       *uuid.UUID  `db:"recipient_id" json:"recipient_id,omitempty"`
	Email             string      `db:"email" json:"email"`
	ProviderMessageID string      `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Status            EmailStatus `db:"status" json:"status"`
	SentAt            *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time  `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt          *time.Time  `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt         *time.Time  `db:"clicked_at" json:"clicked_at,omitempty"`
	RepliedAt         *time.Time  `db:"replied_at" json:"replied_at,omitempty"`
	ErrorMessage      string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}

// EmailLogUpdate is the mutation one delivery event applies to an email log.
// A nil timestamp field leaves the column untouched; a set one only fills a null column.
type EmailLogUpdate struct {
	Status       EmailStatus
	SentAt       *time.Time
	DeliveredAt  *time.Time
	OpenedAt     *time.Time
	ClickedAt    *time.Time
	RepliedAt    *time.Time
	ErrorMessage string
}

// Engagement is one opened/clicked observation for an owner's recipient.
type Engagement struct {
	UserID    uuid.UUID
	Email     string
	OpenedAt  *time.Time
	ClickedAt *time.Time
}

// LatestAt returns the most recent of the open and click timestamps.
func (e Engagement) LatestAt() *time.Time {
	switch {
	case e.OpenedAt == nil:
		return e.ClickedAt
	case e.ClickedAt == nil:
		return e.OpenedAt
	case e.ClickedAt.After(*e.OpenedAt):
		return e.ClickedAt
	default:
		return e.OpenedAt
	}
}
