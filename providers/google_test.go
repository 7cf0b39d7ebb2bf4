package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/models"
)

func TestGoogleBusiness_FetchReviews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/1/locations/2/reviews", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"reviews": []map[string]any{
				{
					"reviewId":   "rev-1",
					"reviewer":   map[string]any{"displayName": "Jane"},
					"starRating": "FIVE",
					"comment":    "Great tutoring",
					"createTime": "2024-01-12T10:00:00Z",
				},
				{
					// No reviewId: the id is parsed out of the resource name.
					"name":       "accounts/1/locations/2/reviews/rev-2",
					"starRating": "THREE",
					"createTime": "2024-01-05T10:00:00Z",
				},
			},
		})
	}))
	defer server.Close()

	adapter := NewGoogleBusiness(server.URL, zap.NewNop())

	reviews, err := adapter.FetchReviews(context.Background(), "owner-1", "accounts/1/locations/2", "token-123", time.Time{})
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	assert.Equal(t, models.ReviewID(models.SourceGoogle, "rev-1"), reviews[0].ID)
	assert.Equal(t, "Jane", reviews[0].Author)
	assert.Equal(t, 5, reviews[0].Rating)
	assert.Equal(t, "Great tutoring", reviews[0].Comment)
	assert.Equal(t, models.SourceGoogle, reviews[0].Platform)

	assert.Equal(t, models.ReviewID(models.SourceGoogle, "rev-2"), reviews[1].ID)
	assert.Equal(t, DefaultAuthor, reviews[1].Author)
	assert.Equal(t, 3, reviews[1].Rating)
	assert.Empty(t, reviews[1].Comment)
}

func TestGoogleBusiness_FetchReviews_watermarkFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reviews": []map[string]any{
				{"reviewId": "old", "starRating": "FOUR", "createTime": "2024-01-05T10:00:00Z"},
				{"reviewId": "new", "starRating": "FOUR", "createTime": "2024-01-12T10:00:00Z"},
			},
		})
	}))
	defer server.Close()

	adapter := NewGoogleBusiness(server.URL, zap.NewNop())
	since := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	reviews, err := adapter.FetchReviews(context.Background(), "owner-1", "accounts/1/locations/2", "token", since)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, models.ReviewID(models.SourceGoogle, "new"), reviews[0].ID)
}

func TestGoogleBusiness_FetchReviews_pagination(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		switch r.URL.Query().Get("pageToken") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"reviews":       []map[string]any{{"reviewId": "a", "starRating": "FIVE", "createTime": "2024-01-01T00:00:00Z"}},
				"nextPageToken": "page-2",
			})
		case "page-2":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"reviews": []map[string]any{{"reviewId": "b", "starRating": "ONE", "createTime": "2024-01-02T00:00:00Z"}},
			})
		default:
			t.Fatalf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer server.Close()

	adapter := NewGoogleBusiness(server.URL, zap.NewNop())

	reviews, err := adapter.FetchReviews(context.Background(), "owner-1", "accounts/1/locations/2", "token", time.Time{})
	require.NoError(t, err)
	assert.Len(t, reviews, 2)
	assert.Equal(t, 2, calls)
}

func TestGoogleBusiness_FetchReviews_upstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewGoogleBusiness(server.URL, zap.NewNop())

	_, err := adapter.FetchReviews(context.Background(), "owner-1", "accounts/1/locations/2", "token", time.Time{})
	assert.ErrorIs(t, err, models.ErrUpstream)
}

func TestNormalizeRating(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{in: 0, want: 0},
		{in: -1, want: 0},
		{in: 0.4, want: 1},
		{in: 3, want: 3},
		{in: 4.5, want: 5},
		{in: 4.4, want: 4},
		{in: 9, want: 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeRating(tt.in), "rating %v", tt.in)
	}
}
