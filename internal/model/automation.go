package model

import (
	"time"

	"github.com/google/uuid"
)

type AutomationType string

const (
	AutomationTypeCampaign AutomationType = "campaign"
	AutomationTypeFollowup AutomationType = "followup"
)

// Trigger is the internal name an automation listens for.
type Trigger string

const (
	TriggerEmailSent       Trigger = "email_sent"
	TriggerEmailDelivered  Trigger = "email_delivered"
	TriggerEmailOpened     Trigger = "email_opened"
	TriggerLinkClicked     Trigger = "link_clicked"
	TriggerEmailBounced    Trigger = "email_bounced"
	TriggerEmailComplained Trigger = "email_complained"
	TriggerEmailReplied    Trigger = "email_replied"

	// time-based, evaluated by the scheduled scanner
	TriggerNotOpened     Trigger = "not_opened"
	TriggerNoReply       Trigger = "no_reply"
	TriggerOpenedNoClick Trigger = "opened_no_click"
)

// TimeBasedTriggers are the triggers webhooks cannot express.
var TimeBasedTriggers = []Trigger{TriggerNotOpened, TriggerNoReply, TriggerOpenedNoClick}

func (t Trigger) IsTimeBased() bool {
	for _, tb := range TimeBasedTriggers {
		if t == tb {
			return true
		}
	}
	return false
}

type ActionKind string

const (
	ActionSendEmail        ActionKind = "send_email"
	ActionSendReengagement ActionKind = "send_reengagement"
	ActionAddTag           ActionKind = "add_tag"
	ActionMoveList         ActionKind = "move_list"
	ActionNotify           ActionKind = "notify"
	ActionWebhook          ActionKind = "webhook"
	ActionMarkChurned      ActionKind = "mark_churned"
)

type Automation struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	UserID         uuid.UUID      `db:"user_id" json:"user_id"`
	Name           string         `db:"name" json:"name"`
	Type           AutomationType `db:"type" json:"type"`
	Trigger        Trigger        `db:"trigger" json:"trigger"`
	Action         ActionKind     `db:"action" json:"action"`
	Delay          string         `db:"delay" json:"delay,omitempty"`
	WebhookURL     string         `db:"webhook_url" json:"webhook_url,omitempty"`
	Enabled        bool           `db:"enabled" json:"enabled"`
	TriggeredCount int            `db:"triggered_count" json:"triggered_count"`
	CompletedCount int            `db:"completed_count" json:"completed_count"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

var delayBuckets = map[string]time.Duration{
	"1h": time.Hour,
	"6h": 6 * time.Hour,
	"1d": 24 * time.Hour,
	"2d": 48 * time.Hour,
	"3d": 72 * time.Hour,
	"1w": 7 * 24 * time.Hour,
}

// DefaultDelay applies when an automation has no delay or an unknown bucket.
const DefaultDelay = 24 * time.Hour

// DelayDuration maps the symbolic delay bucket to a duration.
func DelayDuration(bucket string) time.Duration {
	if d, ok := delayBuckets[bucket]; ok {
		return d
	}
	return DefaultDelay
}
