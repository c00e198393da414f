package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

var eventTriggers = map[string]model.Trigger{
	model.EventSent:       model.TriggerEmailSent,
	model.EventDelivered:  model.TriggerEmailDelivered,
	model.EventOpened:     model.TriggerEmailOpened,
	model.EventClicked:    model.TriggerLinkClicked,
	model.EventBounced:    model.TriggerEmailBounced,
	model.EventComplained: model.TriggerEmailComplained,
	model.EventReplied:    model.TriggerEmailReplied,
}

// NormalizeEventType lowercases the type and adds the "email." prefix generic senders may omit.
// Scheduled event types are returned as-is.
func NormalizeEventType(eventType string) string {
	t := strings.ToLower(strings.TrimSpace(eventType))
	if t == "" || strings.HasPrefix(t, "email.") || strings.HasPrefix(t, model.ScheduledEventPrefix) {
		return t
	}
	return "email." + t
}

// TriggerFor maps a delivery event type to the automation trigger it fires.
func TriggerFor(eventType string) (model.Trigger, bool) {
	t, ok := eventTriggers[NormalizeEventType(eventType)]
	return t, ok
}

// Matcher finds the enabled automations an event fires for one owner.
type Matcher struct {
	AutomationRepo repository.AutomationRepositoryInterface
}

// Match returns an empty list, not an error, for event types with no trigger.
func (m *Matcher) Match(ctx context.Context, eventType string, ownerID uuid.UUID) ([]*model.Automation, error) {
	trigger, ok := TriggerFor(eventType)
	if !ok {
		return []*model.Automation{}, nil
	}
	return m.AutomationRepo.ListEnabledByTrigger(ctx, ownerID, trigger)
}
