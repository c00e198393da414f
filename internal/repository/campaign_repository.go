package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
)

type CampaignRepositoryInterface interface {
	GetOwner(ctx context.Context, campaignID uuid.UUID) (uuid.UUID, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

// GetOwner resolves the user that owns a campaign.
func (r *CampaignRepository) GetOwner(ctx context.Context, campaignID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.DB.QueryRowContext(ctx, `SELECT user_id FROM campaigns WHERE id=$1`, campaignID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, appErrors.NewCampaignNotFound(campaignID)
		}
		return uuid.Nil, err
	}
	return owner, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
