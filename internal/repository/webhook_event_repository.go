package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/mailflow/internal/model"
)

type WebhookEventRepositoryInterface interface {
	// CreateOrGet inserts the event. When ev.DedupKey is set and already stored, ev is
	// filled from the existing row and created is false.
	CreateOrGet(ctx context.Context, ev *model.WebhookEvent) (created bool, err error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type WebhookEventRepository struct {
	DB *sql.DB
}

func (r *WebhookEventRepository) CreateOrGet(ctx context.Context, ev *model.WebhookEvent) (bool, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	payload := string(ev.Payload)
	if payload == "" {
		payload = "{}"
	}
	var dedup *string
	if ev.DedupKey != "" {
		dedup = &ev.DedupKey
	}

	query := `
        INSERT INTO webhook_events (id, campaign_id, event_type, email, recipient_id, dedup_key, payload, processed, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, FALSE, NOW())
        ON CONFLICT (dedup_key) DO NOTHING
        RETURNING created_at
    `
	err := r.DB.QueryRowContext(ctx, query, ev.ID, ev.CampaignID, ev.EventType, ev.Email, ev.RecipientID, dedup, payload).
		Scan(&ev.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) || dedup == nil {
		return false, err
	}

	// conflict on dedup_key: hand back the stored event
	existing := `SELECT id, processed, processed_at, created_at FROM webhook_events WHERE dedup_key=$1`
	err = r.DB.QueryRowContext(ctx, existing, ev.DedupKey).Scan(&ev.ID, &ev.Processed, &ev.ProcessedAt, &ev.CreatedAt)
	return false, err
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE webhook_events SET processed=TRUE, processed_at=$2 WHERE id=$1`, id, at)
	return err
}

var _ WebhookEventRepositoryInterface = (*WebhookEventRepository)(nil)
