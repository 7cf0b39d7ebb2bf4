package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/models"
	"github.com/openfeedback/review-sync/tlmt"
)

// SerpProxy fetches Google reviews through a third-party review-search
// service, used when the owner has no Business Profile authorization but a
// Place ID is known.
type SerpProxy struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	logger    *zap.Logger
	telemetry tlmt.Telemetry
	now       func() time.Time
}

func NewSerpProxy(apiKey, baseURL string, logger *zap.Logger, telemetry tlmt.Telemetry) *SerpProxy {
	return &SerpProxy{
		client:    &http.Client{Timeout: 45 * time.Second},
		apiKey:    apiKey,
		baseURL:   baseURL,
		logger:    logger,
		telemetry: telemetry,
		now:       time.Now,
	}
}

// serpReview mirrors the proxy's heterogeneous reviews[] entries: fields
// appear and disappear depending on which upstream source the proxy hit.
type serpReview struct {
	User struct {
		Name string `json:"name"`
	} `json:"user"`
	Name    string          `json:"name"`
	Rating  json.RawMessage `json:"rating"` // number or numeric string
	Snippet string          `json:"snippet"`
	Text    string          `json:"text"`
	ISODate string          `json:"iso_date"`
	Date    string          `json:"date"` // often a relative string ("2 weeks ago")
}

// FetchReviews posts the place identifier to the proxy and normalizes its
// reviews[] payload. Entries dated strictly before since are skipped.
//
// Timestamps prefer the machine-readable iso_date; a relative date string
// cannot be parsed and falls back to "now". The fallback is kept (it matches
// the long-standing behavior this sync was built against) but logged and
// counted, because it can admit already-synced reviews past the watermark.
func (s *SerpProxy) FetchReviews(ctx context.Context, ownerID, placeID string, since time.Time) ([]models.Review, error) {
	if placeID == "" {
		return nil, fmt.Errorf("%w: no place id configured for review search", models.ErrUpstream)
	}

	payload, err := json.Marshal(map[string]string{"place_id": placeID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/reviews", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: review search: %v", models.ErrUpstream, err)
	}

	body, err := readResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: review search: %v", models.ErrUpstream, err)
	}

	var ans struct {
		Reviews []serpReview `json:"reviews"`
	}

	if err := json.Unmarshal(body, &ans); err != nil {
		return nil, fmt.Errorf("%w: review search: decode: %v", models.ErrUpstream, err)
	}

	var reviews []models.Review

	for i := range ans.Reviews {
		review := s.normalize(ctx, ownerID, &ans.Reviews[i])

		if !since.IsZero() && review.ReviewDate.Before(since) {
			continue
		}

		reviews = append(reviews, review)
	}

	return reviews, nil
}

func (s *SerpProxy) normalize(ctx context.Context, ownerID string, r *serpReview) models.Review {
	author := r.User.Name
	if author == "" {
		author = r.Name
	}

	if author == "" {
		author = DefaultAuthor
	}

	comment := r.Snippet
	if comment == "" {
		comment = r.Text
	}

	reviewDate, fallback := s.parseDate(r)
	if fallback {
		s.logger.Warn("review timestamp unparseable, defaulting to now",
			zap.String("owner_id", ownerID),
			zap.String("raw_date", r.Date))

		_ = s.telemetry.Send(ctx, tlmt.NewEvent(ownerID, tlmt.EventTimestampFallback, map[string]any{
			"raw_date": r.Date,
		}))
	}

	return models.Review{
		ID:         models.SyntheticReviewID(models.SourceGoogle, author, reviewDate, comment),
		OwnerID:    ownerID,
		Platform:   models.SourceGoogle,
		Author:     author,
		Rating:     normalizeRating(parseRating(r.Rating)),
		Comment:    comment,
		ReviewDate: reviewDate,
	}
}

func (s *SerpProxy) parseDate(r *serpReview) (reviewDate time.Time, fallback bool) {
	if r.ISODate != "" {
		if t, err := time.Parse(time.RFC3339, r.ISODate); err == nil {
			return t, false
		}
	}

	if r.Date != "" {
		if t, err := time.Parse(time.RFC3339, r.Date); err == nil {
			return t, false
		}
	}

	return s.now(), true
}

func parseRating(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		var parsed float64
		if _, err := fmt.Sscanf(text, "%f", &parsed); err == nil {
			return parsed
		}
	}

	return 0
}
