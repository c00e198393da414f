package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
)

// Execution is one automation firing for one triggering event.
type Execution struct {
	Automation     *model.Automation
	WebhookEventID uuid.UUID
	// EventType is set for delivery events, Trigger for scheduled ones.
	EventType   string
	Trigger     model.Trigger
	CampaignID  uuid.UUID
	Email       string
	RecipientID *uuid.UUID
	TriggeredAt time.Time
}

// WebhookPayload is the JSON envelope posted to an automation's webhook URL.
type WebhookPayload struct {
	AutomationID   uuid.UUID     `json:"automation_id"`
	AutomationName string        `json:"automation_name"`
	EventType      string        `json:"event_type,omitempty"`
	Trigger        model.Trigger `json:"trigger,omitempty"`
	CampaignID     uuid.UUID     `json:"campaign_id"`
	Email          string        `json:"email"`
	RecipientID    *uuid.UUID    `json:"recipient_id,omitempty"`
	Delay          string        `json:"delay,omitempty"`
	TriggeredAt    time.Time     `json:"triggered_at"`
}

func (e Execution) Payload() WebhookPayload {
	p := WebhookPayload{
		AutomationID:   e.Automation.ID,
		AutomationName: e.Automation.Name,
		EventType:      e.EventType,
		Trigger:        e.Trigger,
		CampaignID:     e.CampaignID,
		Email:          e.Email,
		RecipientID:    e.RecipientID,
		TriggeredAt:    e.TriggeredAt.UTC(),
	}
	if e.Trigger != "" {
		p.Delay = e.Automation.Delay
	}
	return p
}

// WebhookSender posts a JSON body to a URL.
type WebhookSender interface {
	Send(ctx context.Context, url string, data any) error
}

// Action is one automation action variant.
type Action interface {
	Kind() model.ActionKind
	Run(ctx context.Context, exec Execution) error
}

// WebhookAction posts the execution envelope to URL.
type WebhookAction struct {
	URL    string
	Sender WebhookSender
}

func (a *WebhookAction) Kind() model.ActionKind { return model.ActionWebhook }

func (a *WebhookAction) Run(ctx context.Context, exec Execution) error {
	if err := a.Sender.Send(ctx, a.URL, exec.Payload()); err != nil {
		return fmt.Errorf("webhook %s: %w", a.URL, err)
	}
	return nil
}

// RecordOnlyAction completes without a side effect beyond the automation log.
type RecordOnlyAction struct {
	kind model.ActionKind
}

func (a *RecordOnlyAction) Kind() model.ActionKind { return a.kind }

func (a *RecordOnlyAction) Run(context.Context, Execution) error { return nil }

var recordOnlyKinds = map[model.ActionKind]bool{
	model.ActionSendEmail:        true,
	model.ActionSendReengagement: true,
	model.ActionAddTag:           true,
	model.ActionMoveList:         true,
	model.ActionNotify:           true,
	model.ActionMarkChurned:      true,
}

// NewAction builds the action variant configured on automation.
func NewAction(automation *model.Automation, sender WebhookSender) (Action, error) {
	switch {
	case automation.Action == model.ActionWebhook:
		if automation.WebhookURL == "" {
			return nil, appErrors.NewMissingField("webhook_url")
		}
		return &WebhookAction{URL: automation.WebhookURL, Sender: sender}, nil
	case recordOnlyKinds[automation.Action]:
		return &RecordOnlyAction{kind: automation.Action}, nil
	default:
		return nil, appErrors.NewInvalidField("action", fmt.Sprintf("unknown action %q", automation.Action))
	}
}
