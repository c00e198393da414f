package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/repository"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

type AutomationDetails struct {
	*model.Automation
	Stats map[string]int `json:"stats"`
}

// AutomationService serves the owner-scoped automation read endpoints.
type AutomationService struct {
	AutomationRepo repository.AutomationRepositoryInterface
	LogRepo        repository.AutomationLogRepositoryInterface
}

// GetAutomationWithStats returns the automation and its log counts by status.
func (s *AutomationService) GetAutomationWithStats(ctx context.Context, ownerID, id uuid.UUID) (*AutomationDetails, error) {
	a, err := s.AutomationRepo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.LogRepo.StatsByAutomation(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &AutomationDetails{Automation: a, Stats: stats}, nil
}

func (s *AutomationService) ListLogs(ctx context.Context, ownerID, id uuid.UUID, limit int) ([]*model.AutomationLog, error) {
	if limit < 1 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	// ownership check
	if _, err := s.AutomationRepo.GetByID(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.LogRepo.ListByAutomation(ctx, id, limit)
}
