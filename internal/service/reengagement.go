package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

const (
	MaxReengagementAttempts  = 3
	InactiveDays             = 30
	ReengagementIntervalDays = 7

	inactiveScoreDecay = 20
	attemptScoreDecay  = 10

	engagementLookback = 7 * 24 * time.Hour
	engagementLimit    = 1000
)

type ReengagementSummary struct {
	ContactsProcessed     int      `json:"contacts_processed"`
	NewlyInactive         int      `json:"newly_inactive"`
	ReengagementTriggered int      `json:"reengagement_triggered"`
	MarkedChurned         int      `json:"marked_churned"`
	Reactivated           int      `json:"reactivated"`
	Errors                []string `json:"errors"`
}

// ReengagementTracker moves contacts through active -> inactive -> churned and back to
// active when they engage again.
type ReengagementTracker struct {
	EmailLogRepo     repository.EmailLogRepositoryInterface
	ContactRepo      repository.ContactRepositoryInterface
	ReEngagementRepo repository.ReEngagementRepositoryInterface
	Log              *zap.Logger
	Now              func() time.Time
	BatchSize        int
}

func (t *ReengagementTracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *ReengagementTracker) batchSize() int {
	if t.BatchSize <= 0 {
		return DefaultScanBatchSize
	}
	return t.BatchSize
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func (t *ReengagementTracker) Run(ctx context.Context) (*ReengagementSummary, error) {
	summary := &ReengagementSummary{Errors: []string{}}
	now := t.now()

	t.refreshEngagement(ctx, now, summary)

	candidates, err := t.ContactRepo.ListReengagementCandidates(ctx, repository.ReengagementQuery{
		InactiveBefore: now.Add(-days(InactiveDays)),
		CooldownBefore: now.Add(-days(ReengagementIntervalDays)),
		MaxAttempts:    MaxReengagementAttempts,
		Limit:          t.batchSize(),
	})
	if err != nil {
		return nil, fmt.Errorf("list re-engagement candidates: %w", err)
	}

	for _, c := range candidates {
		summary.ContactsProcessed++
		if err := t.advance(ctx, c, now, summary); err != nil {
			t.Log.Error("failed to advance contact", zap.String("contact_id", c.ID.String()), zap.Error(err))
			summary.Errors = append(summary.Errors, fmt.Sprintf("contact %s: %v", c.ID, err))
		}
	}

	t.reactivate(ctx, now, summary)

	metrics.ScanItemsTotal.WithLabelValues("reengagement", "inactive").Add(float64(summary.NewlyInactive))
	metrics.ScanItemsTotal.WithLabelValues("reengagement", "triggered").Add(float64(summary.ReengagementTriggered))
	metrics.ScanItemsTotal.WithLabelValues("reengagement", "churned").Add(float64(summary.MarkedChurned))
	metrics.ScanItemsTotal.WithLabelValues("reengagement", "reactivated").Add(float64(summary.Reactivated))
	t.Log.Info("re-engagement scan finished",
		zap.Int("contacts_processed", summary.ContactsProcessed),
		zap.Int("newly_inactive", summary.NewlyInactive),
		zap.Int("reengagement_triggered", summary.ReengagementTriggered),
		zap.Int("marked_churned", summary.MarkedChurned),
		zap.Int("reactivated", summary.Reactivated),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}

type engagementKey struct {
	userID uuid.UUID
	email  string
}

// refreshEngagement copies the latest open/click per owner and email onto the contact.
func (t *ReengagementTracker) refreshEngagement(ctx context.Context, now time.Time, summary *ReengagementSummary) {
	engagements, err := t.EmailLogRepo.ListRecentEngagements(ctx, now.Add(-engagementLookback), engagementLimit)
	if err != nil {
		t.Log.Error("failed to list recent engagements", zap.Error(err))
		summary.Errors = append(summary.Errors, err.Error())
		return
	}

	latest := map[engagementKey]time.Time{}
	for _, e := range engagements {
		at := e.LatestAt()
		if at == nil {
			continue
		}
		k := engagementKey{userID: e.UserID, email: strings.ToLower(e.Email)}
		if prev, ok := latest[k]; !ok || at.After(prev) {
			latest[k] = *at
		}
	}

	for k, at := range latest {
		if _, err := t.ContactRepo.RefreshEngagement(ctx, k.userID, k.email, at); err != nil {
			t.Log.Error("failed to refresh engagement", zap.String("email", k.email), zap.Error(err))
			summary.Errors = append(summary.Errors, fmt.Sprintf("refresh %s: %v", k.email, err))
		}
	}
}

func (t *ReengagementTracker) advance(ctx context.Context, c *model.Contact, now time.Time, summary *ReengagementSummary) error {
	log := t.Log.With(zap.String("contact_id", c.ID.String()))

	if c.Status == model.ContactActive {
		c.Status = model.ContactInactive
		c.InactiveSince = &now
		c.DecayScore(inactiveScoreDecay)
		summary.NewlyInactive++
	}

	attempt := c.ReengagementAttempts + 1
	if attempt > MaxReengagementAttempts {
		c.Status = model.ContactChurned
		c.EngagementScore = 0
		if err := t.ContactRepo.SaveLifecycle(ctx, c); err != nil {
			return err
		}
		summary.MarkedChurned++
		log.Info("contact churned", zap.Int("attempts", c.ReengagementAttempts))
		return nil
	}

	latest, err := t.ReEngagementRepo.Latest(ctx, c.ID)
	if err != nil {
		t.saveAfterFailure(ctx, log, c)
		return fmt.Errorf("load latest re-engagement attempt: %w", err)
	}

	if latest != nil && latest.Unrecorded(c.LastReengagementAt) {
		// an earlier run created this attempt but stopped before saving the contact
		log.Info("re-engagement attempt already recorded", zap.Int("attempt_number", latest.AttemptNumber))
		if latest.Status == model.ReEngagementPending {
			if err := t.ReEngagementRepo.MarkSent(ctx, latest.ID, now); err != nil {
				log.Warn("failed to mark re-engagement sent", zap.Error(err))
			}
		}
	} else {
		rc := &model.ReEngagementCampaign{
			ID:            uuid.New(),
			UserID:        c.UserID,
			ContactID:     c.ID,
			AttemptNumber: model.NextAttemptNumber(latest, attempt),
			Status:        model.ReEngagementPending,
			CreatedAt:     now,
		}
		if err := t.ReEngagementRepo.Create(ctx, rc); err != nil {
			t.saveAfterFailure(ctx, log, c)
			return fmt.Errorf("create re-engagement attempt %d: %w", rc.AttemptNumber, err)
		}
		if err := t.ReEngagementRepo.MarkSent(ctx, rc.ID, now); err != nil {
			log.Warn("failed to mark re-engagement sent", zap.Error(err))
		}
	}

	c.ReengagementAttempts = attempt
	c.LastReengagementAt = &now
	c.DecayScore(attemptScoreDecay)
	if err := t.ContactRepo.SaveLifecycle(ctx, c); err != nil {
		return err
	}
	summary.ReengagementTriggered++
	log.Info("re-engagement attempt sent", zap.Int("attempt", attempt))
	return nil
}

// saveAfterFailure keeps an inactive transition made before the attempt could be stored.
func (t *ReengagementTracker) saveAfterFailure(ctx context.Context, log *zap.Logger, c *model.Contact) {
	if err := t.ContactRepo.SaveLifecycle(ctx, c); err != nil {
		log.Error("failed to save contact", zap.Error(err))
	}
}

// reactivate returns inactive contacts that engaged within the cooldown window to active.
func (t *ReengagementTracker) reactivate(ctx context.Context, now time.Time, summary *ReengagementSummary) {
	recovered, err := t.ContactRepo.ListRecovered(ctx, now.Add(-days(ReengagementIntervalDays)), t.batchSize())
	if err != nil {
		t.Log.Error("failed to list recovered contacts", zap.Error(err))
		summary.Errors = append(summary.Errors, err.Error())
		return
	}

	for _, c := range recovered {
		c.Status = model.ContactActive
		c.InactiveSince = nil
		c.EngagementScore = model.MaxEngagementScore
		c.ReengagementAttempts = 0
		if err := t.ContactRepo.SaveLifecycle(ctx, c); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("contact %s: %v", c.ID, err))
			continue
		}
		clickedAt := now
		if c.LastEngagedAt != nil {
			clickedAt = *c.LastEngagedAt
		}
		if err := t.ReEngagementRepo.MarkLatestClicked(ctx, c.ID, clickedAt); err != nil {
			t.Log.Warn("failed to mark re-engagement clicked", zap.String("contact_id", c.ID.String()), zap.Error(err))
		}
		summary.Reactivated++
	}
}
