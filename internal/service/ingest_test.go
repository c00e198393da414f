package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/service"
)

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

func TestIngest_OpenedEventFiresAutomation(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	campaign := f.store.addCampaign(owner)
	l := f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", Status: model.EmailStatusDelivered, SentAt: ago(day)})
	a := f.store.addAutomation(&model.Automation{UserID: owner, Trigger: model.TriggerEmailOpened, Action: model.ActionAddTag})

	res, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{
		Source:     service.SourceGeneric,
		EventType:  "email.opened",
		CampaignID: uuidPtr(campaign),
		Email:      "A@x.com",
	})
	require.NoError(t, err)

	require.Len(t, f.store.events, 1)
	ev := f.store.events[res.EventID]
	require.NotNil(t, ev)
	assert.True(t, ev.Processed)
	assert.NotNil(t, ev.ProcessedAt)
	assert.Equal(t, model.EventOpened, ev.EventType)
	assert.Equal(t, "a@x.com", ev.Email)

	assert.Equal(t, model.EmailStatusOpened, l.Status)
	assert.Equal(t, testNow, *l.OpenedAt)

	logs := f.store.logsFor(a.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AutomationLogCompleted, logs[0].Status)
	assert.Equal(t, res.EventID, logs[0].WebhookEventID)
	assert.Equal(t, 1, a.TriggeredCount)
	assert.Equal(t, 1, a.CompletedCount)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Completed)
}

func TestIngest_MissingFieldsWriteNothing(t *testing.T) {
	f := newFixture()
	campaign := f.store.addCampaign(uuid.New())

	cases := []*service.InboundEvent{
		{CampaignID: uuidPtr(campaign), Email: "a@x.com"},
		{EventType: "email.opened", Email: "a@x.com"},
		{EventType: "email.opened", CampaignID: uuidPtr(campaign)},
	}
	for _, in := range cases {
		_, err := f.ingestion.Ingest(context.Background(), in)
		assert.True(t, appErrors.IsValidation(err), "%v", err)
	}
	assert.Empty(t, f.store.events)
}

func TestIngest_RedeliveryReusesEvent(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	campaign := f.store.addCampaign(owner)
	f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", SentAt: ago(day)})
	a := f.store.addAutomation(&model.Automation{UserID: owner, Trigger: model.TriggerLinkClicked, Action: model.ActionWebhook, WebhookURL: "https://hooks.example.com/a"})

	in := &service.InboundEvent{
		Source:     service.SourceProvider,
		EventType:  "email.clicked",
		CampaignID: uuidPtr(campaign),
		Email:      "a@x.com",
		DeliveryID: "msg_123",
	}
	first, err := f.ingestion.Ingest(context.Background(), in)
	require.NoError(t, err)
	second, err := f.ingestion.Ingest(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.EventID, second.EventID)
	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, f.store.events, 1)
	assert.Len(t, f.store.logsFor(a.ID), 1)
	assert.Len(t, f.sender.Sent, 1)
	assert.Equal(t, 1, a.TriggeredCount)
}

func TestIngest_UnknownEventTypeIsStoredOnly(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	campaign := f.store.addCampaign(owner)
	l := f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", Status: model.EmailStatusSent, SentAt: ago(day)})

	res, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{
		EventType:  "email.delivery_delayed",
		CampaignID: uuidPtr(campaign),
		Email:      "a@x.com",
	})
	require.NoError(t, err)

	assert.True(t, f.store.events[res.EventID].Processed)
	assert.Equal(t, model.EmailStatusSent, l.Status)
	assert.Nil(t, l.DeliveredAt)
	assert.Equal(t, 0, res.Matched)
}

func TestIngest_StatusNeverMovesBackwards(t *testing.T) {
	f := newFixture()
	campaign := f.store.addCampaign(uuid.New())
	l := f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", Status: model.EmailStatusClicked, SentAt: ago(day)})

	_, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{EventType: "delivered", CampaignID: uuidPtr(campaign), Email: "a@x.com"})
	require.NoError(t, err)

	assert.Equal(t, model.EmailStatusClicked, l.Status)
	assert.NotNil(t, l.DeliveredAt)
}

func TestIngest_HardBounceSuppresses(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	campaign := f.store.addCampaign(owner)
	l := f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", Status: model.EmailStatusDelivered, SentAt: ago(day)})
	c := f.store.addContact(&model.Contact{UserID: owner, Email: "a@x.com", EngagementScore: 80})

	_, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{
		EventType:     "email.bounced",
		CampaignID:    uuidPtr(campaign),
		Email:         "a@x.com",
		BounceType:    "hard",
		BounceMessage: "mailbox does not exist",
	})
	require.NoError(t, err)

	assert.Equal(t, model.EmailStatusBounced, l.Status)
	assert.Equal(t, "mailbox does not exist", l.ErrorMessage)
	require.Len(t, f.store.suppressions, 1)
	assert.Equal(t, model.SuppressionBounced, f.store.suppressions[0].Reason)
	assert.True(t, c.Suppressed)

	// a bounced log is terminal
	_, err = f.ingestion.Ingest(context.Background(), &service.InboundEvent{EventType: "email.opened", CampaignID: uuidPtr(campaign), Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, model.EmailStatusBounced, l.Status)
}

func TestIngest_SoftBounceDoesNotSuppress(t *testing.T) {
	f := newFixture()
	campaign := f.store.addCampaign(uuid.New())
	f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", SentAt: ago(day)})

	_, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{
		EventType:  "email.bounced",
		CampaignID: uuidPtr(campaign),
		Email:      "a@x.com",
		BounceType: "transient",
	})
	require.NoError(t, err)
	assert.Empty(t, f.store.suppressions)
}

func TestIngest_ComplaintFailsLogAndSuppresses(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	campaign := f.store.addCampaign(owner)
	l := f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", Status: model.EmailStatusOpened, SentAt: ago(day)})

	_, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{EventType: "email.complained", CampaignID: uuidPtr(campaign), Email: "a@x.com"})
	require.NoError(t, err)

	assert.Equal(t, model.EmailStatusFailed, l.Status)
	require.Len(t, f.store.suppressions, 1)
	assert.Equal(t, model.SuppressionComplained, f.store.suppressions[0].Reason)
}

func TestIngest_OpenRefreshesContactEngagement(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	campaign := f.store.addCampaign(owner)
	f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", SentAt: ago(day)})
	c := f.store.addContact(&model.Contact{UserID: owner, Email: "a@x.com", EngagementScore: 40, LastEngagedAt: ago(60 * day)})

	_, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{EventType: "opened", CampaignID: uuidPtr(campaign), Email: "a@x.com"})
	require.NoError(t, err)

	assert.Equal(t, 100, c.EngagementScore)
	assert.Equal(t, testNow, *c.LastEngagedAt)
}

func TestIngest_ResolvesCampaignFromProviderMessageID(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	campaign := f.store.addCampaign(owner)
	recipient := uuid.New()
	l := f.store.addEmailLog(&model.EmailLog{CampaignID: campaign, Email: "a@x.com", ProviderMessageID: "re_abc", RecipientID: &recipient, SentAt: ago(day)})
	a := f.store.addAutomation(&model.Automation{UserID: owner, Trigger: model.TriggerEmailDelivered, Action: model.ActionWebhook, WebhookURL: "https://hooks.example.com/d"})

	res, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{
		Source:            service.SourceProvider,
		EventType:         "email.delivered",
		ProviderMessageID: "re_abc",
		Email:             "a@x.com",
	})
	require.NoError(t, err)

	ev := f.store.events[res.EventID]
	require.NotNil(t, ev.CampaignID)
	assert.Equal(t, campaign, *ev.CampaignID)
	assert.Equal(t, recipient, *ev.RecipientID)
	assert.Equal(t, model.EmailStatusDelivered, l.Status)
	require.Len(t, f.sender.Sent, 1)
	payload := f.sender.Sent[0].Data.(service.WebhookPayload)
	assert.Equal(t, campaign, payload.CampaignID)
	assert.Equal(t, &recipient, payload.RecipientID)
	assert.Equal(t, 1, a.CompletedCount)
}

func TestIngest_UnknownCampaignStillRecordsEvent(t *testing.T) {
	f := newFixture()

	res, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{EventType: "email.opened", CampaignID: uuidPtr(uuid.New()), Email: "a@x.com"})
	require.NoError(t, err)

	assert.True(t, f.store.events[res.EventID].Processed)
	assert.Equal(t, 0, res.Matched)
}

func TestIngest_EventStoreFailure(t *testing.T) {
	f := newFixture()
	f.store.eventErr = errors.New("db down")
	storeErrors := metrics.WebhookEventsTotal.WithLabelValues(service.SourceProvider, model.EventOpened, "error")
	before := testutil.ToFloat64(storeErrors)

	_, err := f.ingestion.Ingest(context.Background(), &service.InboundEvent{
		Source: service.SourceProvider, EventType: "email.opened", CampaignID: uuidPtr(uuid.New()), Email: "a@x.com",
	})

	assert.Error(t, err)
	assert.False(t, appErrors.IsValidation(err))
	assert.Equal(t, before+1, testutil.ToFloat64(storeErrors))
}

func TestEmailLogUpdateFor(t *testing.T) {
	at := testNow

	upd, ok := service.EmailLogUpdateFor(model.EmailStatusPending, model.EventSent, at, "")
	require.True(t, ok)
	assert.Equal(t, model.EmailStatusSent, upd.Status)
	assert.Equal(t, &at, upd.SentAt)

	upd, ok = service.EmailLogUpdateFor(model.EmailStatusOpened, model.EventReplied, at, "")
	require.True(t, ok)
	assert.Equal(t, model.EmailStatusOpened, upd.Status)
	assert.NotNil(t, upd.RepliedAt)

	upd, ok = service.EmailLogUpdateFor(model.EmailStatusSent, model.EventBounced, at, "")
	require.True(t, ok)
	assert.Equal(t, model.EmailStatusBounced, upd.Status)
	assert.Equal(t, "bounced", upd.ErrorMessage)

	upd, ok = service.EmailLogUpdateFor(model.EmailStatusBounced, model.EventClicked, at, "")
	require.True(t, ok)
	assert.Equal(t, model.EmailStatusBounced, upd.Status)

	_, ok = service.EmailLogUpdateFor(model.EmailStatusSent, model.EventDeliveryDelayed, at, "")
	assert.False(t, ok)
}
