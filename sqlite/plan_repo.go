package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openfeedback/review-sync/models"
)

type PlanRepo struct {
	db *sql.DB
}

func NewPlanRepo(db *sql.DB) *PlanRepo {
	return &PlanRepo{db: db}
}

func (repo *PlanRepo) GetByOwner(ctx context.Context, ownerID string) (*models.Plan, error) {
	const q = `SELECT owner_id, plan_id, status, current_period_end FROM plans WHERE owner_id = ?`

	var (
		ans       models.Plan
		periodEnd int64
	)

	err := repo.db.QueryRowContext(ctx, q, ownerID).Scan(&ans.OwnerID, &ans.PlanID, &ans.Status, &periodEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, err
	}

	ans.CurrentPeriodEnd = timeOrZero(periodEnd)

	return &ans, nil
}

func (repo *PlanRepo) SavePlan(ctx context.Context, plan *models.Plan) error {
	const q = `INSERT INTO plans (owner_id, plan_id, status, current_period_end)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
		 plan_id = excluded.plan_id,
		 status = excluded.status,
		 current_period_end = excluded.current_period_end`

	_, err := repo.db.ExecContext(ctx, q, plan.OwnerID, plan.PlanID, plan.Status, unixOrZero(plan.CurrentPeriodEnd))

	return err
}
