package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
)

type ReEngagementRepositoryInterface interface {
	// Latest returns the contact's highest-numbered attempt, or nil when it has none.
	Latest(ctx context.Context, contactID uuid.UUID) (*model.ReEngagementCampaign, error)
	// Create returns appErrors.ErrAlreadyProcessed when the attempt number already exists for the contact.
	Create(ctx context.Context, rc *model.ReEngagementCampaign) error
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkLatestClicked(ctx context.Context, contactID uuid.UUID, at time.Time) error
}

type ReEngagementRepository struct {
	DB *sql.DB
}

func (r *ReEngagementRepository) Latest(ctx context.Context, contactID uuid.UUID) (*model.ReEngagementCampaign, error) {
	query := `
        SELECT id, user_id, contact_id, attempt_number, status, sent_at, clicked_at, created_at
        FROM reengagement_campaigns
        WHERE contact_id=$1
        ORDER BY attempt_number DESC
        LIMIT 1
    `
	rc := &model.ReEngagementCampaign{}
	err := r.DB.QueryRowContext(ctx, query, contactID).Scan(&rc.ID, &rc.UserID, &rc.ContactID, &rc.AttemptNumber,
		&rc.Status, &rc.SentAt, &rc.ClickedAt, &rc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Create stores rc with rc.CreatedAt, defaulting to now.
func (r *ReEngagementRepository) Create(ctx context.Context, rc *model.ReEngagementCampaign) error {
	if rc.ID == uuid.Nil {
		rc.ID = uuid.New()
	}
	if rc.Status == "" {
		rc.Status = model.ReEngagementPending
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO reengagement_campaigns (id, user_id, contact_id, attempt_number, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.DB.ExecContext(ctx, query, rc.ID, rc.UserID, rc.ContactID, rc.AttemptNumber, rc.Status, rc.CreatedAt)
	if isUniqueViolation(err) {
		return appErrors.ErrAlreadyProcessed
	}
	return err
}

func (r *ReEngagementRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE reengagement_campaigns SET status=$2, sent_at=$3 WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, id, model.ReEngagementSent, at)
	return err
}

// MarkLatestClicked flags the contact's most recent attempt as the one that brought it back.
func (r *ReEngagementRepository) MarkLatestClicked(ctx context.Context, contactID uuid.UUID, at time.Time) error {
	query := `UPDATE reengagement_campaigns SET status=$2, clicked_at=$3
        WHERE id = (
            SELECT id FROM reengagement_campaigns
            WHERE contact_id=$1
            ORDER BY attempt_number DESC
            LIMIT 1
        )`
	_, err := r.DB.ExecContext(ctx, query, contactID, model.ReEngagementClicked, at)
	return err
}

var _ ReEngagementRepositoryInterface = (*ReEngagementRepository)(nil)
