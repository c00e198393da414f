package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/service"
)

const (
	headerCampaignID  = "X-Campaign-ID"
	headerRecipientID = "X-Recipient-ID"
	headerSvixID      = "svix-id"
	headerDeliveryID  = "X-Webhook-ID"
)

const genericEventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_type", "campaign_id", "email"],
  "properties": {
    "id": {"type": "string"},
    "event_type": {"type": "string", "minLength": 1},
    "campaign_id": {"type": "string", "minLength": 1},
    "email": {"type": "string", "minLength": 3},
    "recipient_id": {"type": ["string", "null"]},
    "timestamp": {"type": ["string", "null"]},
    "bounce_type": {"type": "string"},
    "error_message": {"type": "string"},
    "metadata": {"type": ["object", "null"]}
  }
}`

func compileGenericSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(genericEventSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("generic-event.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("generic-event.json")
}

// GenericEvent is the body accepted by the generic webhook endpoint.
type GenericEvent struct {
	ID           string          `json:"id,omitempty"`
	EventType    string          `json:"event_type"`
	CampaignID   string          `json:"campaign_id"`
	Email        string          `json:"email"`
	RecipientID  *string         `json:"recipient_id,omitempty"`
	Timestamp    *string         `json:"timestamp,omitempty"`
	BounceType   string          `json:"bounce_type,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

func decodeGeneric(schema *jsonschema.Schema, body []byte, h http.Header) (*service.InboundEvent, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, appErrors.NewInvalidField("body", "malformed JSON")
	}
	if err := schema.Validate(inst); err != nil {
		return nil, appErrors.NewInvalidField("body", schemaReason(err))
	}

	var ev GenericEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, appErrors.NewInvalidField("body", err.Error())
	}

	campaignID, err := uuid.Parse(ev.CampaignID)
	if err != nil {
		return nil, appErrors.NewInvalidField("campaign_id", "not a UUID")
	}
	in := &service.InboundEvent{
		Source:        service.SourceGeneric,
		EventType:     ev.EventType,
		CampaignID:    &campaignID,
		Email:         ev.Email,
		DeliveryID:    firstNonEmpty(ev.ID, h.Get(headerDeliveryID)),
		BounceType:    ev.BounceType,
		BounceMessage: ev.ErrorMessage,
		Payload:       body,
	}
	if ev.RecipientID != nil && *ev.RecipientID != "" {
		rid, err := uuid.Parse(*ev.RecipientID)
		if err != nil {
			return nil, appErrors.NewInvalidField("recipient_id", "not a UUID")
		}
		in.RecipientID = &rid
	}
	if ev.Timestamp != nil && *ev.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, *ev.Timestamp)
		if err != nil {
			return nil, appErrors.NewInvalidField("timestamp", "not RFC 3339")
		}
		in.OccurredAt = &ts
	}
	return in, nil
}

func schemaReason(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		// the first leaf cause names the offending field
		for len(ve.Causes) > 0 {
			ve = ve.Causes[0]
		}
		return ve.Error()
	}
	return err.Error()
}

// ProviderEvent is the email provider's delivery webhook body.
type ProviderEvent struct {
	Type      string       `json:"type"`
	CreatedAt string       `json:"created_at"`
	Data      ProviderData `json:"data"`
}

type ProviderData struct {
	EmailID   string          `json:"email_id"`
	To        []string        `json:"to"`
	CreatedAt string          `json:"created_at"`
	Bounce    *ProviderBounce `json:"bounce,omitempty"`
	Click     json.RawMessage `json:"click,omitempty"`
	Tags      ProviderTags    `json:"tags,omitempty"`
}

type ProviderBounce struct {
	Type    string `json:"type"`
	SubType string `json:"subType"`
	Message string `json:"message"`
}

// ProviderTags accepts both {"campaign_id": "..."} and [{"name": "campaign_id", "value": "..."}].
type ProviderTags map[string]string

func (t *ProviderTags) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err == nil {
		*t = m
		return nil
	}
	var list []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	out := make(ProviderTags, len(list))
	for _, tag := range list {
		out[tag.Name] = tag.Value
	}
	*t = out
	return nil
}

func decodeProvider(body []byte, h http.Header) (*service.InboundEvent, error) {
	var ev ProviderEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, appErrors.NewInvalidField("body", "malformed JSON")
	}
	if ev.Type == "" {
		return nil, appErrors.NewMissingField("type")
	}
	if len(ev.Data.To) == 0 || strings.TrimSpace(ev.Data.To[0]) == "" {
		return nil, appErrors.NewMissingField("data.to")
	}

	in := &service.InboundEvent{
		Source:            service.SourceProvider,
		EventType:         ev.Type,
		ProviderMessageID: ev.Data.EmailID,
		Email:             ev.Data.To[0],
		DeliveryID:        firstNonEmpty(h.Get(headerSvixID), h.Get(headerDeliveryID)),
		Payload:           body,
	}

	if raw := firstNonEmpty(ev.Data.Tags["campaign_id"], h.Get(headerCampaignID)); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, appErrors.NewInvalidField("campaign_id", "not a UUID")
		}
		in.CampaignID = &id
	}
	if raw := firstNonEmpty(ev.Data.Tags["recipient_id"], h.Get(headerRecipientID)); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			in.RecipientID = &id
		}
	}
	if ev.Data.Bounce != nil {
		in.BounceType = ev.Data.Bounce.Type
		in.BounceMessage = ev.Data.Bounce.Message
	}
	if ts, err := time.Parse(time.RFC3339, ev.CreatedAt); err == nil {
		in.OccurredAt = &ts
	}
	return in, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
