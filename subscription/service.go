// Package subscription implements the entitlement gate consumed by the sync
// engine. Billing itself (plan purchase, renewal, webhooks) lives elsewhere;
// this package only answers whether an owner may run review sync.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/models"
)

// Gate is the boolean entitlement check the sync engine consumes.
type Gate interface {
	IsEntitled(ctx context.Context, ownerID string) (bool, error)
}

// Service answers entitlement from the owner's stored plan: any active,
// non-free plan inside its billing period includes review sync.
type Service struct {
	repo   models.PlanRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo models.PlanRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) IsEntitled(ctx context.Context, ownerID string) (bool, error) {
	plan, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("load plan: %w", err)
	}

	if plan.PlanID == models.PlanFree || plan.Status != models.PlanStatusActive {
		return false, nil
	}

	if !plan.CurrentPeriodEnd.IsZero() && s.now().After(plan.CurrentPeriodEnd) {
		s.logger.Debug("plan period elapsed",
			zap.String("owner_id", ownerID),
			zap.Time("period_end", plan.CurrentPeriodEnd))

		return false, nil
	}

	return true, nil
}

// AllowAll passes every owner. Used in dev mode and tests.
type AllowAll struct{}

func (AllowAll) IsEntitled(context.Context, string) (bool, error) {
	return true, nil
}
