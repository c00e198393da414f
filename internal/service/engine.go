package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped means the (automation, event) pair was already logged.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeAborted means no automation log could be written, so the action never ran.
	OutcomeAborted Outcome = "aborted"
)

// Counter receives the automation counter increments of one execution.
type Counter interface {
	Triggered(ctx context.Context, automationID uuid.UUID) error
	Completed(ctx context.Context, automationID uuid.UUID) error
}

// ImmediateCounter writes every increment straight to the automation row.
type ImmediateCounter struct {
	AutomationRepo repository.AutomationRepositoryInterface
}

func (c *ImmediateCounter) Triggered(ctx context.Context, id uuid.UUID) error {
	return c.AutomationRepo.AddCounts(ctx, id, 1, 0)
}

func (c *ImmediateCounter) Completed(ctx context.Context, id uuid.UUID) error {
	return c.AutomationRepo.AddCounts(ctx, id, 0, 1)
}

// Tally accumulates increments in memory until Flush writes them as one delta per automation.
type Tally struct {
	counts map[uuid.UUID]*[2]int
}

func NewTally() *Tally {
	return &Tally{counts: map[uuid.UUID]*[2]int{}}
}

func (t *Tally) entry(id uuid.UUID) *[2]int {
	c, ok := t.counts[id]
	if !ok {
		c = &[2]int{}
		t.counts[id] = c
	}
	return c
}

func (t *Tally) Triggered(_ context.Context, id uuid.UUID) error {
	t.entry(id)[0]++
	return nil
}

func (t *Tally) Completed(_ context.Context, id uuid.UUID) error {
	t.entry(id)[1]++
	return nil
}

// Counts returns the pending (triggered, completed) delta for id.
func (t *Tally) Counts(id uuid.UUID) (int, int) {
	c, ok := t.counts[id]
	if !ok {
		return 0, 0
	}
	return c[0], c[1]
}

func (t *Tally) Flush(ctx context.Context, repo repository.AutomationRepositoryInterface, id uuid.UUID) error {
	c, ok := t.counts[id]
	if !ok {
		return nil
	}
	delete(t.counts, id)
	if c[0] == 0 && c[1] == 0 {
		return nil
	}
	return repo.AddCounts(ctx, id, c[0], c[1])
}

// Engine is the idempotency guard and action dispatcher shared by ingestion and the scanners.
type Engine struct {
	AutomationRepo repository.AutomationRepositoryInterface
	LogRepo        repository.AutomationLogRepositoryInterface
	Sender         WebhookSender
	Log            *zap.Logger
	Now            func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// DispatchSummary counts the outcomes of one event across its matched automations.
type DispatchSummary struct {
	Matched   int      `json:"matched"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Execute runs one automation for one event. The returned error is the reason for
// OutcomeFailed, already recorded on the automation log, or for OutcomeAborted.
func (e *Engine) Execute(ctx context.Context, exec Execution, counter Counter) (Outcome, error) {
	a := exec.Automation
	log := e.Log.With(
		zap.String("automation_id", a.ID.String()),
		zap.String("webhook_event_id", exec.WebhookEventID.String()),
		zap.String("action", string(a.Action)),
	)

	entry, err := e.LogRepo.Create(ctx, a.ID, exec.WebhookEventID)
	if err != nil {
		if errors.Is(err, appErrors.ErrAlreadyProcessed) {
			log.Debug("automation already handled this event")
			metrics.AutomationExecutionsTotal.WithLabelValues(string(a.Action), string(OutcomeSkipped)).Inc()
			return OutcomeSkipped, nil
		}
		log.Error("failed to create automation log", zap.Error(err))
		return OutcomeAborted, err
	}

	if err := counter.Triggered(ctx, a.ID); err != nil {
		log.Warn("failed to increment triggered count", zap.Error(err))
	}

	if exec.TriggeredAt.IsZero() {
		exec.TriggeredAt = e.now()
	}

	runErr := e.dispatch(ctx, exec)
	if runErr != nil {
		if err := e.LogRepo.Fail(ctx, entry.ID, runErr.Error()); err != nil {
			log.Error("failed to record automation failure", zap.Error(err))
		}
		log.Warn("automation action failed", zap.Error(runErr))
		metrics.AutomationExecutionsTotal.WithLabelValues(string(a.Action), string(OutcomeFailed)).Inc()
		return OutcomeFailed, runErr
	}

	if err := e.LogRepo.Complete(ctx, entry.ID); err != nil {
		log.Error("failed to mark automation log completed", zap.Error(err))
	}
	if err := counter.Completed(ctx, a.ID); err != nil {
		log.Warn("failed to increment completed count", zap.Error(err))
	}
	log.Info("automation completed")
	metrics.AutomationExecutionsTotal.WithLabelValues(string(a.Action), string(OutcomeCompleted)).Inc()
	return OutcomeCompleted, nil
}

func (e *Engine) dispatch(ctx context.Context, exec Execution) error {
	action, err := NewAction(exec.Automation, e.Sender)
	if err != nil {
		return err
	}
	return action.Run(ctx, exec)
}

// ExecuteAll runs every automation against the same event. One automation failing never
// stops the others.
func (e *Engine) ExecuteAll(ctx context.Context, base Execution, automations []*model.Automation, counter Counter) DispatchSummary {
	summary := DispatchSummary{Matched: len(automations)}
	for _, a := range automations {
		exec := base
		exec.Automation = a
		outcome, err := e.Execute(ctx, exec, counter)
		switch outcome {
		case OutcomeCompleted:
			summary.Completed++
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			if err != nil {
				summary.Errors = append(summary.Errors, a.ID.String()+": "+err.Error())
			}
		}
	}
	return summary
}
