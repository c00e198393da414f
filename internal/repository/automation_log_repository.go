package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
)

type AutomationLogRepositoryInterface interface {
	// Create inserts a pending log. A second log for the same (automation, event)
	// returns appErrors.ErrAlreadyProcessed.
	Create(ctx context.Context, automationID, webhookEventID uuid.UUID) (*model.AutomationLog, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, errorMessage string) error
	StatsByAutomation(ctx context.Context, automationID uuid.UUID) (map[string]int, error)
	ListByAutomation(ctx context.Context, automationID uuid.UUID, limit int) ([]*model.AutomationLog, error)
}

type AutomationLogRepository struct {
	DB *sql.DB
}

func (r *AutomationLogRepository) Create(ctx context.Context, automationID, webhookEventID uuid.UUID) (*model.AutomationLog, error) {
	l := &model.AutomationLog{
		ID:             uuid.New(),
		AutomationID:   automationID,
		WebhookEventID: webhookEventID,
		Status:         model.AutomationLogPending,
	}
	query := `
        INSERT INTO automation_logs (id, automation_id, webhook_event_id, status, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING created_at
    `
	err := r.DB.QueryRowContext(ctx, query, l.ID, l.AutomationID, l.WebhookEventID, l.Status).Scan(&l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.ErrAlreadyProcessed
		}
		return nil, err
	}
	return l, nil
}

func (r *AutomationLogRepository) Complete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE automation_logs SET status=$2, error_message=NULL, completed_at=NOW() WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, id, model.AutomationLogCompleted)
	return err
}

func (r *AutomationLogRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `UPDATE automation_logs SET status=$2, error_message=$3, completed_at=NOW() WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, id, model.AutomationLogFailed, errorMessage)
	return err
}

func (r *AutomationLogRepository) StatsByAutomation(ctx context.Context, automationID uuid.UUID) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM automation_logs WHERE automation_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, automationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "pending": 0, "completed": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

func (r *AutomationLogRepository) ListByAutomation(ctx context.Context, automationID uuid.UUID, limit int) ([]*model.AutomationLog, error) {
	query := `
        SELECT id, automation_id, webhook_event_id, status, COALESCE(error_message, ''), created_at, completed_at
        FROM automation_logs
        WHERE automation_id=$1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.DB.QueryContext(ctx, query, automationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*model.AutomationLog{}
	for rows.Next() {
		l := &model.AutomationLog{}
		if err := rows.Scan(&l.ID, &l.AutomationID, &l.WebhookEventID, &l.Status, &l.ErrorMessage, &l.CreatedAt, &l.CompletedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

var _ AutomationLogRepositoryInterface = (*AutomationLogRepository)(nil)
