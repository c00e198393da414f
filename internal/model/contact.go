package model

import (
	"time"

	"github.com/google/uuid"
)

type ContactStatus string

const (
	ContactActive   ContactStatus = "active"
	ContactInactive ContactStatus = "inactive"
	ContactChurned  ContactStatus = "churned"
)

const MaxEngagementScore = 100

type Contact struct {
	ID                   uuid.UUID     `db:"id" json:"id"`
	UserID               uuid.UUID     `db:"user_id" json:"user_id"`
	Email                string        `db:"email" json:"email"`
	Status               ContactStatus `db:"status" json:"status"`
	Suppressed           bool          `db:"suppressed" json:"suppressed"`
	EngagementScore      int           `db:"engagement_score" json:"engagement_score"`
	LastEngagedAt        *time.Time    `db:"last_engaged_at" json:"last_engaged_at,omitempty"`
	InactiveSince        *time.Time    `db:"inactive_since" json:"inactive_since,omitempty"`
	ReengagementAttempts int           `db:"reengagement_attempts" json:"reengagement_attempts"`
	LastReengagementAt   *time.Time    `db:"last_reengagement_at" json:"last_reengagement_at,omitempty"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
}

// DecayScore lowers the engagement score by n, floored at zero.
func (c *Contact) DecayScore(n int) {
	c.EngagementScore -= n
	if c.EngagementScore < 0 {
		c.EngagementScore = 0
	}
}

type SuppressionReason string

const (
	SuppressionBounced      SuppressionReason = "bounced"
	SuppressionComplained   SuppressionReason = "complained"
	SuppressionUnsubscribed SuppressionReason = "unsubscribed"
	SuppressionManual       SuppressionReason = "manual"
)

type Suppression struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	UserID    uuid.UUID         `db:"user_id" json:"user_id"`
	Email     string            `db:"email" json:"email"`
	Reason    SuppressionReason `db:"reason" json:"reason"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}
