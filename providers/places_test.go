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
	"github.com/openfeedback/review-sync/placecache"
)

func placesServer(t *testing.T, searchCalls, detailCalls *int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/places:searchText", func(w http.ResponseWriter, r *http.Request) {
		*searchCalls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key-123", r.Header.Get("X-Goog-Api-Key"))
		assert.Equal(t, "places.id", r.Header.Get("X-Goog-FieldMask"))

		var payload struct {
			TextQuery string `json:"textQuery"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Main Street Cafe 1 Main St", payload.TextQuery)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"places": []map[string]any{{"id": "ChIJresolved"}},
		})
	})

	mux.HandleFunc("/places/", func(w http.ResponseWriter, r *http.Request) {
		*detailCalls++
		assert.Equal(t, "key-123", r.Header.Get("X-Goog-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Goog-FieldMask"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"reviews": []map[string]any{
				{
					"rating":            5,
					"publishTime":       "2024-01-12T10:00:00Z",
					"text":              map[string]any{"text": "Lovely"},
					"authorAttribution": map[string]any{"displayName": "Jane"},
				},
				{
					"rating":      2,
					"publishTime": "2024-01-03T10:00:00Z",
				},
			},
		})
	})

	return httptest.NewServer(mux)
}

func TestPlaces_FetchReviews_explicitPlaceID(t *testing.T) {
	var searchCalls, detailCalls int

	server := placesServer(t, &searchCalls, &detailCalls)
	defer server.Close()

	adapter := NewPlaces("key-123", server.URL, placecache.NewMemory(), zap.NewNop())

	reviews, err := adapter.FetchReviews(context.Background(), "owner-1", PlaceQuery{PlaceID: "ChIJexplicit"}, time.Time{})
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	assert.Zero(t, searchCalls)
	assert.Equal(t, "Jane", reviews[0].Author)
	assert.Equal(t, 5, reviews[0].Rating)
	assert.Equal(t, "Lovely", reviews[0].Comment)
	assert.Equal(t, DefaultAuthor, reviews[1].Author)
	assert.Empty(t, reviews[1].Comment)
}

func TestPlaces_FetchReviews_textSearchAndCache(t *testing.T) {
	var searchCalls, detailCalls int

	server := placesServer(t, &searchCalls, &detailCalls)
	defer server.Close()

	cache := placecache.NewMemory()
	adapter := NewPlaces("key-123", server.URL, cache, zap.NewNop())
	query := PlaceQuery{Name: "Main Street Cafe", Address: "1 Main St"}

	_, err := adapter.FetchReviews(context.Background(), "owner-1", query, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, searchCalls)

	// Second sync hits the cache instead of text search.
	_, err = adapter.FetchReviews(context.Background(), "owner-1", query, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, searchCalls)
	assert.Equal(t, 2, detailCalls)

	cached, err := cache.Get(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "ChIJresolved", cached)
}

func TestPlaces_FetchReviews_watermarkFilter(t *testing.T) {
	var searchCalls, detailCalls int

	server := placesServer(t, &searchCalls, &detailCalls)
	defer server.Close()

	adapter := NewPlaces("key-123", server.URL, placecache.NewMemory(), zap.NewNop())
	since := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	reviews, err := adapter.FetchReviews(context.Background(), "owner-1", PlaceQuery{PlaceID: "ChIJx"}, since)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Jane", reviews[0].Author)
}

func TestPlaces_ResolvePlaceID_missingConfiguration(t *testing.T) {
	adapter := NewPlaces("key-123", "http://127.0.0.1:0", placecache.NewMemory(), zap.NewNop())

	_, err := adapter.ResolvePlaceID(context.Background(), "owner-1", PlaceQuery{})
	require.ErrorIs(t, err, models.ErrUpstream)
	assert.Contains(t, err.Error(), "no place id configured")
}

func TestPlaces_FetchReviews_syntheticIDsAreStable(t *testing.T) {
	var searchCalls, detailCalls int

	server := placesServer(t, &searchCalls, &detailCalls)
	defer server.Close()

	adapter := NewPlaces("key-123", server.URL, placecache.NewMemory(), zap.NewNop())

	first, err := adapter.FetchReviews(context.Background(), "owner-1", PlaceQuery{PlaceID: "ChIJx"}, time.Time{})
	require.NoError(t, err)
	second, err := adapter.FetchReviews(context.Background(), "owner-1", PlaceQuery{PlaceID: "ChIJx"}, time.Time{})
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}
