package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/memory"
	"github.com/openfeedback/review-sync/models"
	"github.com/openfeedback/review-sync/pkg/encryption"
	"github.com/openfeedback/review-sync/providers"
	"github.com/openfeedback/review-sync/subscription"
	"github.com/openfeedback/review-sync/tlmt/gonoop"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) Token(context.Context, string) (string, error) {
	f.calls++

	return f.token, f.err
}

type fakeBusiness struct {
	reviews   []models.Review
	err       error
	calls     int
	lastSince time.Time
	lastToken string
	lastPath  string
}

func (f *fakeBusiness) FetchReviews(_ context.Context, _, locationPath, accessToken string, since time.Time) ([]models.Review, error) {
	f.calls++
	f.lastSince = since
	f.lastToken = accessToken
	f.lastPath = locationPath

	if f.err != nil {
		return nil, f.err
	}

	var ans []models.Review

	for _, review := range f.reviews {
		if !since.IsZero() && review.ReviewDate.Before(since) {
			continue
		}

		ans = append(ans, review)
	}

	return ans, nil
}

type fakeMeta struct {
	reviews  []models.Review
	err      error
	calls    int
	lastPage string
}

func (f *fakeMeta) FetchReviews(_ context.Context, _, pageID, _ string, since time.Time) ([]models.Review, error) {
	f.calls++
	f.lastPage = pageID

	if f.err != nil {
		return nil, f.err
	}

	var ans []models.Review

	for _, review := range f.reviews {
		if !since.IsZero() && review.ReviewDate.Before(since) {
			continue
		}

		ans = append(ans, review)
	}

	return ans, nil
}

type fakePlaces struct {
	placeID      string
	reviews      []models.Review
	resolveCalls int
	fetchCalls   int
}

func (f *fakePlaces) ResolvePlaceID(_ context.Context, _ string, query providers.PlaceQuery) (string, error) {
	f.resolveCalls++

	if query.PlaceID != "" {
		return query.PlaceID, nil
	}

	if f.placeID == "" {
		return "", fmt.Errorf("%w: no place id configured", models.ErrUpstream)
	}

	return f.placeID, nil
}

func (f *fakePlaces) FetchReviews(context.Context, string, providers.PlaceQuery, time.Time) ([]models.Review, error) {
	f.fetchCalls++

	return f.reviews, nil
}

type fakeSerp struct {
	reviews     []models.Review
	calls       int
	lastPlaceID string
}

func (f *fakeSerp) FetchReviews(_ context.Context, _, placeID string, _ time.Time) ([]models.Review, error) {
	f.calls++
	f.lastPlaceID = placeID

	return f.reviews, nil
}

type denyGate struct{}

func (denyGate) IsEntitled(context.Context, string) (bool, error) {
	return false, nil
}

type harness struct {
	engine       *Engine
	integrations *memory.IntegrationRepo
	reviews      *memory.ReviewRepo
	business     *fakeBusiness
	meta         *fakeMeta
	places       *fakePlaces
	serp         *fakeSerp
	googleTokens *fakeTokens
	metaTokens   *fakeTokens
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	h := &harness{
		integrations: memory.NewIntegrationRepo(),
		reviews:      memory.NewReviewRepo(),
		business:     &fakeBusiness{},
		meta:         &fakeMeta{},
		places:       &fakePlaces{},
		serp:         &fakeSerp{},
		googleTokens: &fakeTokens{token: "google-token"},
		metaTokens:   &fakeTokens{token: "page-token"},
	}

	cfg := Config{
		Gate:           subscription.AllowAll{},
		Integrations:   h.integrations,
		Reviews:        h.reviews,
		GoogleTokens:   h.googleTokens,
		MetaTokens:     h.metaTokens,
		GoogleBusiness: h.business,
		Places:         h.places,
		Meta:           h.meta,
		Serp:           h.serp,
		Logger:         zap.NewNop(),
		Telemetry:      gonoop.New(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	h.engine = New(cfg)

	return h
}

func saveIntegration(t *testing.T, h *harness, integration models.Integration) {
	t.Helper()
	require.NoError(t, h.integrations.Save(context.Background(), &integration))
}

func googleReview(id string, date time.Time) models.Review {
	return models.Review{
		ID:         models.ReviewID(models.SourceGoogle, id),
		OwnerID:    "owner-1",
		Platform:   models.SourceGoogle,
		Author:     "Jane",
		Rating:     5,
		Comment:    "Great",
		ReviewDate: date,
	}
}

func TestEngine_Sync_watermarkSkipsOldReviews(t *testing.T) {
	h := newHarness(t)
	watermark := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	saveIntegration(t, h, models.Integration{
		OwnerID:      "owner-1",
		Platform:     models.PlatformGoogle,
		LocationPath: "accounts/1/locations/2",
		Status:       models.IntegrationStatusActive,
		LastSyncedAt: watermark,
	})

	h.business.reviews = []models.Review{
		googleReview("old", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)),
		googleReview("new", time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)),
	}

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"google"}, Options{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalSynced)
	assert.Equal(t, watermark, h.business.lastSince)
	assert.Equal(t, "google-token", h.business.lastToken)
	assert.Equal(t, "accounts/1/locations/2", h.business.lastPath)
	assert.NotEmpty(t, result.InvocationID)

	// The watermark advances to the invocation start, not the newest
	// review's date.
	integration, err := h.integrations.Get(context.Background(), "owner-1", models.PlatformGoogle)
	require.NoError(t, err)
	assert.Equal(t, result.SyncedAt, integration.LastSyncedAt)

	stored, err := h.reviews.SelectByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, result.SyncedAt, stored[0].SyncedAt)
}

func TestEngine_Sync_repeatRunIsIdempotent(t *testing.T) {
	h := newHarness(t)

	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformGoogle,
		Status:   models.IntegrationStatusActive,
	})

	h.business.reviews = []models.Review{
		googleReview("a", time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)),
		googleReview("b", time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)),
	}

	first, err := h.engine.Sync(context.Background(), "owner-1", []string{"google"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalSynced)

	// Wipe the watermark so the second run re-fetches everything; the
	// merge still inserts nothing new.
	integration, err := h.integrations.Get(context.Background(), "owner-1", models.PlatformGoogle)
	require.NoError(t, err)
	integration.LastSyncedAt = time.Time{}
	require.NoError(t, h.integrations.Save(context.Background(), integration))

	second, err := h.engine.Sync(context.Background(), "owner-1", []string{"google"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalSynced)
	assert.True(t, second.Success)

	stored, err := h.reviews.SelectByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestEngine_Sync_partialFailureIsIsolated(t *testing.T) {
	h := newHarness(t)

	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformGoogle,
		Status:   models.IntegrationStatusActive,
	})
	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformMeta,
		PageID:   "page-42",
		Status:   models.IntegrationStatusActive,
	})

	h.googleTokens.err = fmt.Errorf("refresh: %w", models.ErrReauthorizationRequired)
	h.meta.reviews = []models.Review{{
		ID:         models.ReviewID(models.SourceFacebook, "f1"),
		OwnerID:    "owner-1",
		Platform:   models.SourceFacebook,
		Author:     "Sam",
		Rating:     4,
		ReviewDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}}

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"google", "meta"}, Options{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalSynced)

	require.Contains(t, result.Results, "google")
	assert.False(t, result.Results["google"].Success)
	assert.Contains(t, result.Results["google"].Error, "reauthorization")

	require.Contains(t, result.Results, "facebook")
	assert.True(t, result.Results["facebook"].Success)
	assert.Equal(t, 1, result.Results["facebook"].Count)
	assert.Equal(t, "page-42", h.meta.lastPage)

	// Only the successful platform's watermark moves.
	google, err := h.integrations.Get(context.Background(), "owner-1", models.PlatformGoogle)
	require.NoError(t, err)
	assert.True(t, google.LastSyncedAt.IsZero())

	meta, err := h.integrations.Get(context.Background(), "owner-1", models.PlatformMeta)
	require.NoError(t, err)
	assert.Equal(t, result.SyncedAt, meta.LastSyncedAt)
}

func TestEngine_Sync_allPlatformsFail(t *testing.T) {
	h := newHarness(t)

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"meta"}, Options{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Zero(t, result.TotalSynced)
	assert.Contains(t, result.Results["facebook"].Error, "integration not found")
}

func TestEngine_Sync_entitlementRequired(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Gate = denyGate{}
	})

	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformGoogle,
		Status:   models.IntegrationStatusActive,
	})

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"google"}, Options{})
	require.ErrorIs(t, err, models.ErrEntitlementRequired)
	assert.Nil(t, result)
	assert.Zero(t, h.business.calls)
	assert.Zero(t, h.googleTokens.calls)
}

func TestEngine_Sync_defaultsToGoogle(t *testing.T) {
	h := newHarness(t)

	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformGoogle,
		Status:   models.IntegrationStatusActive,
	})

	result, err := h.engine.Sync(context.Background(), "owner-1", nil, Options{})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Contains(t, result.Results, "google")
	assert.Zero(t, h.meta.calls)
}

func TestEngine_Sync_metaAliasReportsAsFacebook(t *testing.T) {
	h := newHarness(t)

	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformMeta,
		PageID:   "page-42",
		Status:   models.IntegrationStatusActive,
	})

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"meta"}, Options{})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Contains(t, result.Results, "facebook")
}

func TestEngine_Sync_corruptCredentialAbortsCall(t *testing.T) {
	h := newHarness(t)

	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformGoogle,
		Status:   models.IntegrationStatusActive,
	})
	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformMeta,
		PageID:   "page-42",
		Status:   models.IntegrationStatusActive,
	})

	h.googleTokens.err = fmt.Errorf("decrypt access token: %w", encryption.ErrCorruptCredential)

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"google", "meta"}, Options{})
	require.ErrorIs(t, err, encryption.ErrCorruptCredential)
	assert.Nil(t, result)
	assert.Zero(t, h.meta.calls)
}

func TestEngine_Sync_inactiveGoogleIntegrationDoesNotFallBack(t *testing.T) {
	h := newHarness(t)

	saveIntegration(t, h, models.Integration{
		OwnerID:  "owner-1",
		Platform: models.PlatformGoogle,
		Status:   models.IntegrationStatusExpired,
	})

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"google"}, Options{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.ErrorContains(t, errors.New(result.Results["google"].Error), "not active")
	assert.Zero(t, h.places.resolveCalls)
	assert.Zero(t, h.serp.calls)
}

func TestEngine_Sync_googleFallbackViaSearchProxy(t *testing.T) {
	h := newHarness(t)

	h.serp.reviews = []models.Review{
		googleReview("public-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
	}

	opts := Options{Google: GoogleOptions{PlaceID: "ChIJx"}}

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"google"}, opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalSynced)
	assert.Equal(t, "ChIJx", h.serp.lastPlaceID)
	assert.Zero(t, h.business.calls)
	assert.Zero(t, h.googleTokens.calls)
}

func TestEngine_Sync_googleFallbackViaPlacesWhenNoProxy(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Serp = nil
	})

	h.places.reviews = []models.Review{
		googleReview("public-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
	}

	opts := Options{Google: GoogleOptions{BusinessName: "Main Street Cafe"}}

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"google"}, opts)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, h.places.fetchCalls)
	assert.Zero(t, h.serp.calls)
}

func TestEngine_Sync_unsupportedPlatform(t *testing.T) {
	h := newHarness(t)

	result, err := h.engine.Sync(context.Background(), "owner-1", []string{"yelp"}, Options{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Results["yelp"].Error, "unsupported platform")
}
