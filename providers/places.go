package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/models"
	"github.com/openfeedback/review-sync/placecache"
)

// DefaultPlacesBaseURL is the Places API (New) root.
const DefaultPlacesBaseURL = "https://places.googleapis.com/v1"

// How long a resolved Place ID stays cached. Place IDs are stable but can be
// retired, so they are re-resolved periodically.
const placeIDCacheTTL = 30 * 24 * time.Hour

// PlaceQuery identifies the business to look up when no OAuth integration
// exists: an explicit Place ID, or a name and address for text search.
type PlaceQuery struct {
	PlaceID string
	Name    string
	Address string
}

// Places is the no-auth fallback adapter: it fetches the small set of public
// reviews the Places API exposes, using an API key instead of owner OAuth.
type Places struct {
	client  *http.Client
	apiKey  string
	baseURL string
	cache   placecache.Cache
	logger  *zap.Logger
}

func NewPlaces(apiKey, baseURL string, cache placecache.Cache, logger *zap.Logger) *Places {
	if baseURL == "" {
		baseURL = DefaultPlacesBaseURL
	}

	return &Places{
		client:  &http.Client{Timeout: 30 * time.Second},
		apiKey:  apiKey,
		baseURL: baseURL,
		cache:   cache,
		logger:  logger,
	}
}

// ResolvePlaceID resolves the Place ID for an owner: explicit input first,
// then the cache, then a text-search lookup by name and address (cached on
// success).
func (p *Places) ResolvePlaceID(ctx context.Context, ownerID string, query PlaceQuery) (string, error) {
	if query.PlaceID != "" {
		return query.PlaceID, nil
	}

	if cached, err := p.cache.Get(ctx, ownerID); err != nil {
		p.logger.Warn("place cache read failed", zap.String("owner_id", ownerID), zap.Error(err))
	} else if cached != "" {
		return cached, nil
	}

	if query.Name == "" {
		return "", fmt.Errorf("%w: no place id configured and no business name to search with", models.ErrUpstream)
	}

	placeID, err := p.textSearch(ctx, strings.TrimSpace(query.Name+" "+query.Address))
	if err != nil {
		return "", err
	}

	if err := p.cache.Set(ctx, ownerID, placeID, placeIDCacheTTL); err != nil {
		p.logger.Warn("place cache write failed", zap.String("owner_id", ownerID), zap.Error(err))
	}

	return placeID, nil
}

// FetchReviews resolves the place and returns its public reviews at or after
// since. The API returns at most a handful of reviews and no stable review
// id, so ids are synthesized from author and publish time.
func (p *Places) FetchReviews(ctx context.Context, ownerID string, query PlaceQuery, since time.Time) ([]models.Review, error) {
	placeID, err := p.ResolvePlaceID(ctx, ownerID, query)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/places/%s", p.baseURL, placeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("X-Goog-Api-Key", p.apiKey)
	req.Header.Set("X-Goog-FieldMask", "id,displayName,rating,userRatingCount,reviews")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: places details: %v", models.ErrUpstream, err)
	}

	body, err := readResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: places details: %v", models.ErrUpstream, err)
	}

	var details struct {
		Reviews []struct {
			Rating            float64 `json:"rating"`
			PublishTime       string  `json:"publishTime"`
			Text              struct {
				Text string `json:"text"`
			} `json:"text"`
			AuthorAttribution struct {
				DisplayName string `json:"displayName"`
			} `json:"authorAttribution"`
		} `json:"reviews"`
	}

	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("%w: places details: decode: %v", models.ErrUpstream, err)
	}

	var ans []models.Review

	for _, r := range details.Reviews {
		author := r.AuthorAttribution.DisplayName
		if author == "" {
			author = DefaultAuthor
		}

		reviewDate, err := time.Parse(time.RFC3339, r.PublishTime)
		if err != nil {
			reviewDate = time.Time{}
		}

		if !since.IsZero() && reviewDate.Before(since) {
			continue
		}

		ans = append(ans, models.Review{
			ID:         models.SyntheticReviewID(models.SourceGoogle, author, reviewDate, r.Text.Text),
			OwnerID:    ownerID,
			Platform:   models.SourceGoogle,
			Author:     author,
			Rating:     normalizeRating(r.Rating),
			Comment:    r.Text.Text,
			ReviewDate: reviewDate,
		})
	}

	return ans, nil
}

func (p *Places) textSearch(ctx context.Context, query string) (string, error) {
	payload, err := json.Marshal(map[string]string{"textQuery": query})
	if err != nil {
		return "", fmt.Errorf("marshal search query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/places:searchText", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", p.apiKey)
	req.Header.Set("X-Goog-FieldMask", "places.id")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: places search: %v", models.ErrUpstream, err)
	}

	body, err := readResponse(resp)
	if err != nil {
		return "", fmt.Errorf("%w: places search: %v", models.ErrUpstream, err)
	}

	var ans struct {
		Places []struct {
			ID string `json:"id"`
		} `json:"places"`
	}

	if err := json.Unmarshal(body, &ans); err != nil {
		return "", fmt.Errorf("%w: places search: decode: %v", models.ErrUpstream, err)
	}

	if len(ans.Places) == 0 {
		return "", fmt.Errorf("%w: places search found no match for %q", models.ErrUpstream, query)
	}

	return ans.Places[0].ID, nil
}
