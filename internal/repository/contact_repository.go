package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/mailflow/internal/model"
)

// ReengagementQuery selects contacts due for a re-engagement pass.
type ReengagementQuery struct {
	InactiveBefore time.Time
	CooldownBefore time.Time
	MaxAttempts    int
	Limit          int
}

type ContactRepositoryInterface interface {
	RefreshEngagement(ctx context.Context, userID uuid.UUID, email string, at time.Time) (bool, error)
	ListReengagementCandidates(ctx context.Context, q ReengagementQuery) ([]*model.Contact, error)
	ListRecovered(ctx context.Context, engagedAfter time.Time, limit int) ([]*model.Contact, error)
	SaveLifecycle(ctx context.Context, c *model.Contact) error
	MarkSuppressed(ctx context.Context, userID uuid.UUID, email string) error
}

type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, user_id, email, status, suppressed, engagement_score, last_engaged_at, inactive_since,
    reengagement_attempts, last_reengagement_at, created_at`

func (r *ContactRepository) queryContacts(ctx context.Context, query string, args ...any) ([]*model.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []*model.Contact{}
	for rows.Next() {
		c := &model.Contact{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Email, &c.Status, &c.Suppressed, &c.EngagementScore,
			&c.LastEngagedAt, &c.InactiveSince, &c.ReengagementAttempts, &c.LastReengagementAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// RefreshEngagement records an engagement for the owner's non-suppressed contact and resets its score.
func (r *ContactRepository) RefreshEngagement(ctx context.Context, userID uuid.UUID, email string, at time.Time) (bool, error) {
	query := `UPDATE contacts
        SET last_engaged_at = GREATEST(COALESCE(last_engaged_at, $3), $3),
            engagement_score = $4,
            updated_at = NOW()
        WHERE user_id=$1 AND lower(email)=lower($2) AND suppressed=FALSE`
	res, err := r.DB.ExecContext(ctx, query, userID, email, at, model.MaxEngagementScore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListReengagementCandidates includes contacts that already used every attempt so the
// caller can churn them.
func (r *ContactRepository) ListReengagementCandidates(ctx context.Context, q ReengagementQuery) ([]*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
        WHERE status IN ('active', 'inactive')
          AND suppressed=FALSE
          AND reengagement_attempts <= $3
          AND (last_engaged_at IS NULL OR last_engaged_at < $1)
          AND (last_reengagement_at IS NULL OR last_reengagement_at < $2)
        ORDER BY COALESCE(last_reengagement_at, created_at)
        LIMIT $4`
	return r.queryContacts(ctx, query, q.InactiveBefore, q.CooldownBefore, q.MaxAttempts, q.Limit)
}

func (r *ContactRepository) ListRecovered(ctx context.Context, engagedAfter time.Time, limit int) ([]*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
        WHERE status='inactive'
          AND last_engaged_at IS NOT NULL
          AND last_engaged_at > $1
        ORDER BY last_engaged_at DESC
        LIMIT $2`
	return r.queryContacts(ctx, query, engagedAfter, limit)
}

// SaveLifecycle persists the re-engagement state machine fields.
func (r *ContactRepository) SaveLifecycle(ctx context.Context, c *model.Contact) error {
	query := `UPDATE contacts
        SET status=$3,
            engagement_score=$4,
            inactive_since=$5,
            reengagement_attempts=$6,
            last_reengagement_at=$7,
            updated_at=NOW()
        WHERE id=$1 AND user_id=$2`
	_, err := r.DB.ExecContext(ctx, query, c.ID, c.UserID, c.Status, c.EngagementScore, c.InactiveSince,
		c.ReengagementAttempts, c.LastReengagementAt)
	return err
}

func (r *ContactRepository) MarkSuppressed(ctx context.Context, userID uuid.UUID, email string) error {
	query := `UPDATE contacts SET suppressed=TRUE, updated_at=NOW() WHERE user_id=$1 AND lower(email)=lower($2)`
	_, err := r.DB.ExecContext(ctx, query, userID, email)
	return err
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
