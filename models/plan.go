package models

import (
	"context"
	"time"
)

// Plan statuses mirror the billing provider's subscription states; only
// active plans pass the entitlement gate.
const (
	PlanStatusActive   = "active"
	PlanStatusPastDue  = "past_due"
	PlanStatusCanceled = "canceled"
)

// PlanFree is the default tier; it does not include external review sync.
const PlanFree = "free"

// Plan is the slice of the subscription model this subsystem consumes: just
// enough to answer the entitlement question for an owner.
type Plan struct {
	OwnerID          string    `json:"owner_id"`
	PlanID           string    `json:"plan_id"`
	Status           string    `json:"status"`
	CurrentPeriodEnd time.Time `json:"current_period_end"`
}

// PlanRepository reads the owner's current plan.
type PlanRepository interface {
	GetByOwner(ctx context.Context, ownerID string) (*Plan, error)
	SavePlan(ctx context.Context, plan *Plan) error
}
