package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/openfeedback/review-sync/models"
)

type IntegrationRepo struct {
	db *sql.DB
}

func NewIntegrationRepo(db *sql.DB) *IntegrationRepo {
	return &IntegrationRepo{db: db}
}

func (repo *IntegrationRepo) Get(ctx context.Context, ownerID, platform string) (*models.Integration, error) {
	const q = `SELECT owner_id, platform, location_path, page_id, instagram_id,
		access_token, refresh_token, user_token, expiry, last_synced_at, status,
		created_at, updated_at
		FROM integrations WHERE owner_id = ? AND platform = ?`

	row := repo.db.QueryRowContext(ctx, q, ownerID, platform)

	integration, err := rowToIntegration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrIntegrationNotFound
		}

		return nil, err
	}

	return integration, nil
}

func (repo *IntegrationRepo) Save(ctx context.Context, integration *models.Integration) error {
	now := time.Now().UTC()

	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	integration.UpdatedAt = now

	const q = `INSERT INTO integrations
		(owner_id, platform, location_path, page_id, instagram_id,
		 access_token, refresh_token, user_token, expiry, last_synced_at, status,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, platform) DO UPDATE SET
		 location_path = excluded.location_path,
		 page_id = excluded.page_id,
		 instagram_id = excluded.instagram_id,
		 access_token = excluded.access_token,
		 refresh_token = excluded.refresh_token,
		 user_token = excluded.user_token,
		 expiry = excluded.expiry,
		 last_synced_at = excluded.last_synced_at,
		 status = excluded.status,
		 updated_at = excluded.updated_at`

	_, err := repo.db.ExecContext(ctx, q,
		integration.OwnerID, integration.Platform,
		integration.LocationPath, integration.PageID, integration.InstagramID,
		integration.AccessToken, integration.RefreshToken, integration.UserToken,
		unixOrZero(integration.Expiry), unixOrZero(integration.LastSyncedAt),
		integration.Status,
		integration.CreatedAt.Unix(), integration.UpdatedAt.Unix(),
	)

	return err
}

func (repo *IntegrationRepo) SelectByOwner(ctx context.Context, ownerID string) ([]models.Integration, error) {
	const q = `SELECT owner_id, platform, location_path, page_id, instagram_id,
		access_token, refresh_token, user_token, expiry, last_synced_at, status,
		created_at, updated_at
		FROM integrations WHERE owner_id = ? ORDER BY platform`

	rows, err := repo.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.Integration

	for rows.Next() {
		integration, err := rowToIntegration(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, *integration)
	}

	return ans, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func rowToIntegration(row scannable) (*models.Integration, error) {
	var (
		ans                                models.Integration
		expiry, lastSynced, created, updated int64
	)

	err := row.Scan(
		&ans.OwnerID, &ans.Platform,
		&ans.LocationPath, &ans.PageID, &ans.InstagramID,
		&ans.AccessToken, &ans.RefreshToken, &ans.UserToken,
		&expiry, &lastSynced, &ans.Status,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}

	ans.Expiry = timeOrZero(expiry)
	ans.LastSyncedAt = timeOrZero(lastSynced)
	ans.CreatedAt = timeOrZero(created)
	ans.UpdatedAt = timeOrZero(updated)

	return &ans, nil
}
