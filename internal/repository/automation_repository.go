package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
)

type AutomationRepositoryInterface interface {
	ListEnabledByTrigger(ctx context.Context, userID uuid.UUID, trigger model.Trigger) ([]*model.Automation, error)
	ListEnabledByTriggers(ctx context.Context, triggers []model.Trigger) ([]*model.Automation, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Automation, error)
	AddCounts(ctx context.Context, id uuid.UUID, triggered, completed int) error
}

type AutomationRepository struct {
	DB *sql.DB
}

const automationColumns = `id, user_id, name, type, trigger, action, COALESCE(delay, ''), COALESCE(webhook_url, ''),
    enabled, triggered_count, completed_count, created_at, updated_at`

func scanAutomation(row interface{ Scan(...any) error }) (*model.Automation, error) {
	a := &model.Automation{}
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Trigger, &a.Action, &a.Delay, &a.WebhookURL,
		&a.Enabled, &a.TriggeredCount, &a.CompletedCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AutomationRepository) queryAutomations(ctx context.Context, query string, args ...any) ([]*model.Automation, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	automations := []*model.Automation{}
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, a)
	}
	return automations, rows.Err()
}

// ListEnabledByTrigger returns the owner's enabled automations listening for trigger.
func (r *AutomationRepository) ListEnabledByTrigger(ctx context.Context, userID uuid.UUID, trigger model.Trigger) ([]*model.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations
        WHERE user_id=$1 AND trigger=$2 AND enabled=TRUE
        ORDER BY created_at`
	return r.queryAutomations(ctx, query, userID, trigger)
}

// ListEnabledByTriggers returns enabled automations of every owner for the given triggers.
// Callers must keep each automation's work scoped to its UserID.
func (r *AutomationRepository) ListEnabledByTriggers(ctx context.Context, triggers []model.Trigger) ([]*model.Automation, error) {
	names := make([]string, len(triggers))
	for i, t := range triggers {
		names[i] = string(t)
	}
	query := `SELECT ` + automationColumns + ` FROM automations
        WHERE enabled=TRUE AND trigger = ANY($1)
        ORDER BY user_id, created_at`
	return r.queryAutomations(ctx, query, pq.Array(names))
}

func (r *AutomationRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id=$1 AND user_id=$2`
	a, err := scanAutomation(r.DB.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewAutomationNotFound(id)
		}
		return nil, err
	}
	return a, nil
}

// AddCounts increments the counters in a single statement so concurrent runs never lose updates.
func (r *AutomationRepository) AddCounts(ctx context.Context, id uuid.UUID, triggered, completed int) error {
	if triggered == 0 && completed == 0 {
		return nil
	}
	query := `UPDATE automations
        SET triggered_count = triggered_count + $2,
            completed_count = completed_count + $3,
            updated_at = NOW()
        WHERE id=$1`
	res, err := r.DB.ExecContext(ctx, query, id, triggered, completed)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewAutomationNotFound(id)
	}
	return nil
}

var _ AutomationRepositoryInterface = (*AutomationRepository)(nil)
