package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/models"
)

// DefaultGraphBaseURL is the Meta Graph API root used unless overridden.
const DefaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// metaTimeLayout is the Graph API's created_time format.
const metaTimeLayout = "2006-01-02T15:04:05-0700"

// Meta fetches page-level rating aggregates and, where the access tier
// allows it, the individual ratings sub-collection. Review text may require
// elevated permissions and defaults to empty.
type Meta struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

func NewMeta(baseURL string, logger *zap.Logger) *Meta {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}

	return &Meta{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		logger:  logger,
	}
}

type metaRating struct {
	CreatedTime string `json:"created_time"`
	Reviewer    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"reviewer"`
	Rating             float64 `json:"rating"`
	ReviewText         string  `json:"review_text"`
	RecommendationType string  `json:"recommendation_type"`
}

type metaPageFields struct {
	OverallStarRating float64 `json:"overall_star_rating"`
	RatingCount       int     `json:"rating_count"`
	Ratings           struct {
		Data []metaRating `json:"data"`
	} `json:"ratings"`
}

// FetchReviews queries the page fields endpoint and normalizes the ratings
// sub-collection. Meta exposes no stable long-lived rating id at basic
// access tiers, so ids are synthesized from page id, reviewer and timestamp.
func (m *Meta) FetchReviews(ctx context.Context, ownerID, pageID, accessToken string, since time.Time) ([]models.Review, error) {
	query := url.Values{}
	query.Set("fields", "overall_star_rating,rating_count,ratings{reviewer,rating,review_text,created_time,recommendation_type}")
	query.Set("access_token", accessToken)

	endpoint := fmt.Sprintf("%s/%s?%s", m.baseURL, pageID, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: graph page fields: %v", models.ErrUpstream, err)
	}

	body, err := readResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: graph page fields: %v", models.ErrUpstream, err)
	}

	var page metaPageFields
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: graph page fields: decode: %v", models.ErrUpstream, err)
	}

	m.logger.Debug("fetched page rating aggregates",
		zap.String("owner_id", ownerID),
		zap.String("page_id", pageID),
		zap.Float64("overall_star_rating", page.OverallStarRating),
		zap.Int("rating_count", page.RatingCount))

	var ans []models.Review

	for i := range page.Ratings.Data {
		review := m.normalize(ownerID, pageID, &page.Ratings.Data[i])

		if !since.IsZero() && review.ReviewDate.Before(since) {
			continue
		}

		ans = append(ans, review)
	}

	return ans, nil
}

func (m *Meta) normalize(ownerID, pageID string, r *metaRating) models.Review {
	author := r.Reviewer.Name
	if author == "" {
		author = DefaultAuthor
	}

	reviewDate, err := time.Parse(metaTimeLayout, r.CreatedTime)
	if err != nil {
		if reviewDate, err = time.Parse(time.RFC3339, r.CreatedTime); err != nil {
			reviewDate = time.Time{}
		}
	}

	rating := normalizeRating(r.Rating)
	if rating == 0 {
		// Newer access tiers replace star ratings with recommendations.
		switch r.RecommendationType {
		case "positive":
			rating = 5
		case "negative":
			rating = 1
		}
	}

	nativeID := fmt.Sprintf("%s|%s|%d", pageID, r.Reviewer.ID, reviewDate.Unix())

	return models.Review{
		ID:         models.ReviewID(models.SourceFacebook, nativeID),
		OwnerID:    ownerID,
		Platform:   models.SourceFacebook,
		Author:     author,
		Rating:     rating,
		Comment:    r.ReviewText,
		ReviewDate: reviewDate,
	}
}
