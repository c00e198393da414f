package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
)

type EmailLogRepositoryInterface interface {
	FindLatest(ctx context.Context, campaignID uuid.UUID, email string) (*model.EmailLog, error)
	FindByProviderMessageID(ctx context.Context, messageID string) (*model.EmailLog, error)
	ApplyUpdate(ctx context.Context, id uuid.UUID, upd model.EmailLogUpdate) error
	ListDueForTrigger(ctx context.Context, automation *model.Automation, cutoff time.Time, limit int) ([]*model.EmailLog, error)
	ListRecentEngagements(ctx context.Context, since time.Time, limit int) ([]model.Engagement, error)
}

type EmailLogRepository struct {
	DB *sql.DB
}

const emailLogColumns = `l.id, l.campaign_id, l.recipient_id, l.email, COALESCE(l.provider_message_id, ''), l.status,
    l.sent_at, l.delivered_at, l.opened_at, l.clicked_at, l.replied_at, COALESCE(l.error_message, ''), l.created_at`

func scanEmailLog(row interface{ Scan(...any) error }) (*model.EmailLog, error) {
	l := &model.EmailLog{}
	err := row.Scan(&l.ID, &l.CampaignID, &l.RecipientID, &l.Email, &l.ProviderMessageID, &l.Status,
		&l.SentAt, &l.DeliveredAt, &l.OpenedAt, &l.ClickedAt, &l.RepliedAt, &l.ErrorMessage, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// FindLatest returns the most recently created log for (campaign, email).
func (r *EmailLogRepository) FindLatest(ctx context.Context, campaignID uuid.UUID, email string) (*model.EmailLog, error) {
	query := `SELECT ` + emailLogColumns + ` FROM email_logs l
        WHERE l.campaign_id=$1 AND lower(l.email)=lower($2)
        ORDER BY l.created_at DESC
        LIMIT 1`
	l, err := scanEmailLog(r.DB.QueryRowContext(ctx, query, campaignID, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewEmailLogNotFound(email, campaignID.String())
		}
		return nil, err
	}
	return l, nil
}

func (r *EmailLogRepository) FindByProviderMessageID(ctx context.Context, messageID string) (*model.EmailLog, error) {
	query := `SELECT ` + emailLogColumns + ` FROM email_logs l
        WHERE l.provider_message_id=$1
        ORDER BY l.created_at DESC
        LIMIT 1`
	l, err := scanEmailLog(r.DB.QueryRowContext(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewEmailLogNotFound("message "+messageID, "")
		}
		return nil, err
	}
	return l, nil
}

// ApplyUpdate writes the new status and fills timestamp columns that are still null.
func (r *EmailLogRepository) ApplyUpdate(ctx context.Context, id uuid.UUID, upd model.EmailLogUpdate) error {
	query := `UPDATE email_logs SET
            status=$2,
            sent_at=COALESCE(sent_at, $3),
            delivered_at=COALESCE(delivered_at, $4),
            opened_at=COALESCE(opened_at, $5),
            clicked_at=COALESCE(clicked_at, $6),
            replied_at=COALESCE(replied_at, $7),
            error_message=COALESCE(NULLIF($8, ''), error_message)
        WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, id, upd.Status, upd.SentAt, upd.DeliveredAt, upd.OpenedAt,
		upd.ClickedAt, upd.RepliedAt, upd.ErrorMessage)
	return err
}

var triggerPredicates = map[model.Trigger]string{
	model.TriggerNotOpened:     `l.opened_at IS NULL AND l.status NOT IN ('bounced', 'failed')`,
	model.TriggerOpenedNoClick: `l.opened_at IS NOT NULL AND l.clicked_at IS NULL`,
	model.TriggerNoReply:       `l.opened_at IS NULL AND l.replied_at IS NULL AND l.status NOT IN ('bounced', 'failed')`,
}

// ListDueForTrigger returns up to limit of the owner's logs sent before cutoff that match the
// automation's time-based trigger and have not been logged for this automation yet.
func (r *EmailLogRepository) ListDueForTrigger(ctx context.Context, automation *model.Automation, cutoff time.Time, limit int) ([]*model.EmailLog, error) {
	predicate, ok := triggerPredicates[automation.Trigger]
	if !automation.Trigger.IsTimeBased() || !ok {
		return nil, fmt.Errorf("trigger %q is not time-based", automation.Trigger)
	}
	query := `SELECT ` + emailLogColumns + ` FROM email_logs l
        JOIN campaigns c ON c.id = l.campaign_id
        WHERE c.user_id=$1
          AND l.sent_at IS NOT NULL
          AND l.sent_at < $2
          AND ` + predicate + `
          AND NOT EXISTS (
            SELECT 1 FROM webhook_events e
            JOIN automation_logs al ON al.webhook_event_id = e.id
            WHERE al.automation_id=$3 AND e.dedup_key = $4::text || l.id::text
          )
        ORDER BY l.sent_at
        LIMIT $5`
	rows, err := r.DB.QueryContext(ctx, query, automation.UserID, cutoff, automation.ID,
		model.ScheduledDedupPrefix(automation.ID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*model.EmailLog{}
	for rows.Next() {
		l, err := scanEmailLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListRecentEngagements returns opened/clicked observations since the given time, newest first.
func (r *EmailLogRepository) ListRecentEngagements(ctx context.Context, since time.Time, limit int) ([]model.Engagement, error) {
	query := `SELECT c.user_id, l.email, l.opened_at, l.clicked_at
        FROM email_logs l
        JOIN campaigns c ON c.id = l.campaign_id
        WHERE l.opened_at >= $1 OR l.clicked_at >= $1
        ORDER BY GREATEST(l.opened_at, l.clicked_at) DESC
        LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	engagements := []model.Engagement{}
	for rows.Next() {
		var e model.Engagement
		if err := rows.Scan(&e.UserID, &e.Email, &e.OpenedAt, &e.ClickedAt); err != nil {
			return nil, err
		}
		engagements = append(engagements, e)
	}
	return engagements, rows.Err()
}

var _ EmailLogRepositoryInterface = (*EmailLogRepository)(nil)
