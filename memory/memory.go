// Package memory provides map-backed repositories used in tests and in dev
// mode when no database path is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openfeedback/review-sync/models"
)

type IntegrationRepo struct {
	mu    sync.RWMutex
	items map[string]models.Integration
}

func NewIntegrationRepo() *IntegrationRepo {
	return &IntegrationRepo{items: make(map[string]models.Integration)}
}

func integrationKey(ownerID, platform string) string {
	return ownerID + "|" + platform
}

func (r *IntegrationRepo) Get(_ context.Context, ownerID, platform string) (*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	integration, ok := r.items[integrationKey(ownerID, platform)]
	if !ok {
		return nil, models.ErrIntegrationNotFound
	}

	return &integration, nil
}

func (r *IntegrationRepo) Save(_ context.Context, integration *models.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := integrationKey(integration.OwnerID, integration.Platform)

	if existing, ok := r.items[key]; ok {
		integration.CreatedAt = existing.CreatedAt
	} else if integration.CreatedAt.IsZero() {
		integration.CreatedAt = time.Now().UTC()
	}

	integration.UpdatedAt = time.Now().UTC()
	r.items[key] = *integration

	return nil
}

func (r *IntegrationRepo) SelectByOwner(_ context.Context, ownerID string) ([]models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ans []models.Integration

	for _, integration := range r.items {
		if integration.OwnerID == ownerID {
			ans = append(ans, integration)
		}
	}

	sort.Slice(ans, func(i, j int) bool {
		return ans[i].Platform < ans[j].Platform
	})

	return ans, nil
}

type ReviewRepo struct {
	mu    sync.RWMutex
	items map[string]models.Review
}

func NewReviewRepo() *ReviewRepo {
	return &ReviewRepo{items: make(map[string]models.Review)}
}

func (r *ReviewRepo) Get(_ context.Context, id string) (*models.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	review, ok := r.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	return &review, nil
}

func (r *ReviewRepo) Insert(_ context.Context, review *models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[review.ID]; ok {
		return models.ErrAlreadyExists
	}

	r.items[review.ID] = *review

	return nil
}

func (r *ReviewRepo) Update(_ context.Context, review *models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[review.ID]; !ok {
		return models.ErrNotFound
	}

	r.items[review.ID] = *review

	return nil
}

func (r *ReviewRepo) SelectByOwner(_ context.Context, ownerID string) ([]models.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ans []models.Review

	for _, review := range r.items {
		if review.OwnerID == ownerID {
			ans = append(ans, review)
		}
	}

	sort.Slice(ans, func(i, j int) bool {
		return ans[i].ReviewDate.After(ans[j].ReviewDate)
	})

	return ans, nil
}

func (r *ReviewRepo) CountByRating(_ context.Context, ownerID string) (map[int]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ans := make(map[int]int)

	for _, review := range r.items {
		if review.OwnerID == ownerID {
			ans[review.Rating]++
		}
	}

	return ans, nil
}

type PlanRepo struct {
	mu    sync.RWMutex
	items map[string]models.Plan
}

func NewPlanRepo() *PlanRepo {
	return &PlanRepo{items: make(map[string]models.Plan)}
}

func (r *PlanRepo) GetByOwner(_ context.Context, ownerID string) (*models.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plan, ok := r.items[ownerID]
	if !ok {
		return nil, models.ErrNotFound
	}

	return &plan, nil
}

func (r *PlanRepo) SavePlan(_ context.Context, plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[plan.OwnerID] = *plan

	return nil
}
