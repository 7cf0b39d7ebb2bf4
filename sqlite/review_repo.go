package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openfeedback/review-sync/models"
)

type ReviewRepo struct {
	db *sql.DB
}

func NewReviewRepo(db *sql.DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

func (repo *ReviewRepo) Get(ctx context.Context, id string) (*models.Review, error) {
	const q = `SELECT id, owner_id, platform, author, rating, comment, review_date, synced_at
		FROM reviews WHERE id = ?`

	row := repo.db.QueryRowContext(ctx, q, id)

	review, err := rowToReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, err
	}

	return review, nil
}

func (repo *ReviewRepo) Insert(ctx context.Context, review *models.Review) error {
	const q = `INSERT INTO reviews (id, owner_id, platform, author, rating, comment, review_date, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := repo.db.ExecContext(ctx, q,
		review.ID, review.OwnerID, review.Platform,
		review.Author, review.Rating, review.Comment,
		unixOrZero(review.ReviewDate), unixOrZero(review.SyncedAt),
	)

	return err
}

func (repo *ReviewRepo) Update(ctx context.Context, review *models.Review) error {
	const q = `UPDATE reviews SET author = ?, rating = ?, comment = ?, review_date = ?, synced_at = ?
		WHERE id = ?`

	res, err := repo.db.ExecContext(ctx, q,
		review.Author, review.Rating, review.Comment,
		unixOrZero(review.ReviewDate), unixOrZero(review.SyncedAt),
		review.ID,
	)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (repo *ReviewRepo) SelectByOwner(ctx context.Context, ownerID string) ([]models.Review, error) {
	const q = `SELECT id, owner_id, platform, author, rating, comment, review_date, synced_at
		FROM reviews WHERE owner_id = ? ORDER BY review_date DESC`

	rows, err := repo.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.Review

	for rows.Next() {
		review, err := rowToReview(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, *review)
	}

	return ans, rows.Err()
}

func (repo *ReviewRepo) CountByRating(ctx context.Context, ownerID string) (map[int]int, error) {
	const q = `SELECT rating, COUNT(*) FROM reviews WHERE owner_id = ? GROUP BY rating`

	rows, err := repo.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	ans := make(map[int]int)

	for rows.Next() {
		var rating, count int

		if err := rows.Scan(&rating, &count); err != nil {
			return nil, err
		}

		ans[rating] = count
	}

	return ans, rows.Err()
}

func rowToReview(row scannable) (*models.Review, error) {
	var (
		ans                  models.Review
		reviewDate, syncedAt int64
	)

	err := row.Scan(
		&ans.ID, &ans.OwnerID, &ans.Platform,
		&ans.Author, &ans.Rating, &ans.Comment,
		&reviewDate, &syncedAt,
	)
	if err != nil {
		return nil, err
	}

	ans.ReviewDate = timeOrZero(reviewDate)
	ans.SyncedAt = timeOrZero(syncedAt)

	return &ans, nil
}
