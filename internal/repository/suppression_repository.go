package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/unclebandit/mailflow/internal/model"
)

type SuppressionRepositoryInterface interface {
	Add(ctx context.Context, userID uuid.UUID, email string, reason model.SuppressionReason) error
}

type SuppressionRepository struct {
	DB *sql.DB
}

// Add suppresses email for the owner. Suppressing an already suppressed address is a no-op.
func (r *SuppressionRepository) Add(ctx context.Context, userID uuid.UUID, email string, reason model.SuppressionReason) error {
	query := `
        INSERT INTO suppressions (id, user_id, email, reason, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (user_id, email) DO NOTHING
    `
	_, err := r.DB.ExecContext(ctx, query, uuid.New(), userID, strings.ToLower(email), reason)
	return err
}

var _ SuppressionRepositoryInterface = (*SuppressionRepository)(nil)
