package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/service"
	"github.com/unclebandit/mailflow/internal/webhook"
)

const (
	maxBodyBytes    = 1 << 20
	signatureWindow = 5 * time.Minute
)

type Ingester interface {
	Ingest(ctx context.Context, in *service.InboundEvent) (*service.IngestResult, error)
}

// WebhookController accepts delivery events from the email provider and from generic senders.
type WebhookController struct {
	Ingestion Ingester
	// Secret, when set, requires a valid signature on every inbound call.
	Secret string
	Log    *zap.Logger
	Now    func() time.Time

	schema *jsonschema.Schema
}

func NewWebhookController(ingestion Ingester, secret string, log *zap.Logger) (*WebhookController, error) {
	schema, err := compileGenericSchema()
	if err != nil {
		return nil, err
	}
	return &WebhookController{Ingestion: ingestion, Secret: secret, Log: log, Now: time.Now, schema: schema}, nil
}

// ProviderWebhook handles POST /webhooks/email.
func (c *WebhookController) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := c.readBody(w, r, service.SourceProvider)
	if !ok {
		return
	}
	in, err := decodeProvider(body, r.Header)
	if err != nil {
		c.fail(w, service.SourceProvider, err)
		return
	}
	c.ingest(w, r, in)
}

// GenericWebhook handles POST /webhooks/events.
func (c *WebhookController) GenericWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := c.readBody(w, r, service.SourceGeneric)
	if !ok {
		return
	}
	in, err := decodeGeneric(c.schema, body, r.Header)
	if err != nil {
		c.fail(w, service.SourceGeneric, err)
		return
	}
	c.ingest(w, r, in)
}

func (c *WebhookController) readBody(w http.ResponseWriter, r *http.Request, source string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		c.fail(w, source, appErrors.NewInvalidField("body", "unreadable or too large"))
		return nil, false
	}
	if c.Secret != "" {
		if err := c.verify(body, r.Header); err != nil {
			c.Log.Warn("rejected inbound webhook", zap.String("source", source), zap.Error(err))
			c.fail(w, source, appErrors.ErrUnauthorized)
			return nil, false
		}
	}
	return body, true
}

func (c *WebhookController) verify(body []byte, h http.Header) error {
	headers, err := webhook.ParseSignatureHeaders(h)
	if err != nil {
		return err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return webhook.Verify(c.Secret, body, headers, now(), signatureWindow)
}

func (c *WebhookController) ingest(w http.ResponseWriter, r *http.Request, in *service.InboundEvent) {
	res, err := c.Ingestion.Ingest(r.Context(), in)
	if err != nil {
		c.fail(w, in.Source, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"event_id":  res.EventID,
		"duplicate": res.Duplicate,
		"matched":   res.Matched,
	})
}

func (c *WebhookController) fail(w http.ResponseWriter, source string, err error) {
	switch {
	case appErrors.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, appErrors.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
	default:
		c.Log.Error("webhook ingestion failed", zap.String("source", source), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
