package model

import (
	"time"

	"github.com/google/uuid"
)

type ReEngagementStatus string

const (
	ReEngagementPending ReEngagementStatus = "pending"
	ReEngagementSent    ReEngagementStatus = "sent"
	ReEngagementClicked ReEngagementStatus = "clicked"
)

type ReEngagementCampaign struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	UserID        uuid.UUID          `db:"user_id" json:"user_id"`
	ContactID     uuid.UUID          `db:"contact_id" json:"contact_id"`
	AttemptNumber int                `db:"attempt_number" json:"attempt_number"`
	Status        ReEngagementStatus `db:"status" json:"status"`
	SentAt        *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	ClickedAt     *time.Time         `db:"clicked_at" json:"clicked_at,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}

// Unrecorded reports whether rc was created after the contact's last recorded attempt,
// which happens when a run stops between creating the row and saving the contact.
// Rows are created with the same timestamp the contact records as its last attempt.
func (rc *ReEngagementCampaign) Unrecorded(lastRecorded *time.Time) bool {
	if rc.Status == ReEngagementClicked {
		return false
	}
	return lastRecorded == nil || rc.CreatedAt.After(*lastRecorded)
}

// NextAttemptNumber keeps attempt numbers increasing per contact across inactivity cycles.
// cycleAttempt is the attempt count within the current cycle.
func NextAttemptNumber(latest *ReEngagementCampaign, cycleAttempt int) int {
	if latest != nil && latest.AttemptNumber >= cycleAttempt {
		return latest.AttemptNumber + 1
	}
	return cycleAttempt
}
