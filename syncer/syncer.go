// Package syncer orchestrates a sync invocation: entitlement gate, then per
// platform token acquisition, adapter fetch, idempotent merge into the
// review store and watermark update, aggregated into one result. A platform
// failure is recorded and the remaining platforms still run.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/models"
	"github.com/openfeedback/review-sync/pkg/encryption"
	"github.com/openfeedback/review-sync/providers"
	"github.com/openfeedback/review-sync/subscription"
	"github.com/openfeedback/review-sync/tlmt"
	"github.com/openfeedback/review-sync/tokens"
)

// GoogleOptions carries caller-supplied hints for the no-auth Google
// fallback path.
type GoogleOptions struct {
	PlaceID      string `json:"place_id,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
	Address      string `json:"address,omitempty"`
}

// Options holds provider-specific sync options.
type Options struct {
	Google GoogleOptions `json:"google"`
}

// PlatformResult reports one platform's outcome within an invocation.
type PlatformResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// Result aggregates an invocation. Success is true when at least one
// platform succeeded; TotalSynced counts newly inserted reviews only.
type Result struct {
	InvocationID string                    `json:"invocation_id"`
	Success      bool                      `json:"success"`
	Results      map[string]PlatformResult `json:"results"`
	TotalSynced  int                       `json:"total_synced"`
	SyncedAt     time.Time                 `json:"synced_at"`
}

// Adapter contracts, satisfied by the providers package and by test fakes.
type (
	GoogleBusinessFetcher interface {
		FetchReviews(ctx context.Context, ownerID, locationPath, accessToken string, since time.Time) ([]models.Review, error)
	}

	PlacesFetcher interface {
		ResolvePlaceID(ctx context.Context, ownerID string, query providers.PlaceQuery) (string, error)
		FetchReviews(ctx context.Context, ownerID string, query providers.PlaceQuery, since time.Time) ([]models.Review, error)
	}

	MetaFetcher interface {
		FetchReviews(ctx context.Context, ownerID, pageID, accessToken string, since time.Time) ([]models.Review, error)
	}

	SerpFetcher interface {
		FetchReviews(ctx context.Context, ownerID, placeID string, since time.Time) ([]models.Review, error)
	}
)

// Engine is the review sync engine.
type Engine struct {
	gate         subscription.Gate
	integrations models.IntegrationRepository
	reviews      models.ReviewRepository

	googleTokens tokens.Manager
	metaTokens   tokens.Manager

	googleBusiness GoogleBusinessFetcher
	places         PlacesFetcher
	meta           MetaFetcher
	serp           SerpFetcher // nil when no search-proxy key is configured

	logger    *zap.Logger
	telemetry tlmt.Telemetry
	now       func() time.Time
}

type Config struct {
	Gate         subscription.Gate
	Integrations models.IntegrationRepository
	Reviews      models.ReviewRepository

	GoogleTokens tokens.Manager
	MetaTokens   tokens.Manager

	GoogleBusiness GoogleBusinessFetcher
	Places         PlacesFetcher
	Meta           MetaFetcher
	Serp           SerpFetcher

	Logger    *zap.Logger
	Telemetry tlmt.Telemetry
}

func New(cfg Config) *Engine {
	return &Engine{
		gate:           cfg.Gate,
		integrations:   cfg.Integrations,
		reviews:        cfg.Reviews,
		googleTokens:   cfg.GoogleTokens,
		metaTokens:     cfg.MetaTokens,
		googleBusiness: cfg.GoogleBusiness,
		places:         cfg.Places,
		meta:           cfg.Meta,
		serp:           cfg.Serp,
		logger:         cfg.Logger,
		telemetry:      cfg.Telemetry,
		now:            time.Now,
	}
}

// DefaultPlatforms is used when the caller supplies none.
var DefaultPlatforms = []string{models.SourceGoogle}

// Sync runs one invocation for the owner across the requested platforms.
// It returns an error only for failures that invalidate the whole call
// (missing entitlement, vault corruption); per-platform failures are
// reported inside the Result.
func (e *Engine) Sync(ctx context.Context, ownerID string, platformSet []string, opts Options) (*Result, error) {
	entitled, err := e.gate.IsEntitled(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("entitlement check: %w", err)
	}

	if !entitled {
		_ = e.telemetry.Send(ctx, tlmt.NewEvent(ownerID, tlmt.EventEntitlementBlocked, nil))

		return nil, models.ErrEntitlementRequired
	}

	if len(platformSet) == 0 {
		platformSet = DefaultPlatforms
	}

	result := &Result{
		InvocationID: uuid.NewString(),
		Results:      make(map[string]PlatformResult, len(platformSet)),
		SyncedAt:     e.now().UTC(),
	}

	logger := e.logger.With(
		zap.String("owner_id", ownerID),
		zap.String("invocation_id", result.InvocationID))

	for _, requested := range platformSet {
		platform := normalizePlatform(requested)

		var (
			count int
			err   error
		)

		switch platform {
		case models.SourceGoogle:
			count, err = e.syncGoogle(ctx, ownerID, opts.Google, result.SyncedAt)
		case models.SourceFacebook:
			count, err = e.syncMeta(ctx, ownerID, result.SyncedAt)
		default:
			err = fmt.Errorf("unsupported platform %q", requested)
		}

		if err != nil {
			// Vault corruption is fatal for the whole call: every platform
			// would hit the same broken key material.
			if errors.Is(err, encryption.ErrCorruptCredential) {
				return nil, err
			}

			logger.Warn("platform sync failed",
				zap.String("platform", platform), zap.Error(err))

			result.Results[platform] = PlatformResult{Success: false, Count: 0, Error: err.Error()}

			continue
		}

		result.Results[platform] = PlatformResult{Success: true, Count: count}
		result.TotalSynced += count
		result.Success = true
	}

	logger.Info("sync completed",
		zap.Bool("success", result.Success),
		zap.Int("total_synced", result.TotalSynced))

	_ = e.telemetry.Send(ctx, tlmt.NewEvent(ownerID, tlmt.EventSyncCompleted, map[string]any{
		"success":      result.Success,
		"total_synced": result.TotalSynced,
		"platforms":    len(result.Results),
	}))

	return result, nil
}

// normalizePlatform maps aliases onto result keys: the meta integration is
// reported under "facebook".
func normalizePlatform(platform string) string {
	switch platform {
	case models.PlatformMeta, models.SourceFacebook:
		return models.SourceFacebook
	default:
		return platform
	}
}

func (e *Engine) syncGoogle(ctx context.Context, ownerID string, opts GoogleOptions, syncedAt time.Time) (int, error) {
	integration, err := e.integrations.Get(ctx, ownerID, models.PlatformGoogle)

	switch {
	case err == nil && integration.Active():
		return e.syncGoogleBusiness(ctx, integration, syncedAt)
	case errors.Is(err, models.ErrIntegrationNotFound):
		return e.syncGoogleFallback(ctx, ownerID, opts, syncedAt)
	case err != nil:
		return 0, err
	default:
		return 0, fmt.Errorf("%w: status %s", models.ErrIntegrationNotActive, integration.Status)
	}
}

func (e *Engine) syncGoogleBusiness(ctx context.Context, integration *models.Integration, syncedAt time.Time) (int, error) {
	since := integration.LastSyncedAt

	token, err := e.googleTokens.Token(ctx, integration.OwnerID)
	if err != nil {
		return 0, err
	}

	reviews, err := e.googleBusiness.FetchReviews(ctx, integration.OwnerID, integration.LocationPath, token, since)
	if err != nil {
		return 0, err
	}

	count, err := e.upsertAll(ctx, reviews, syncedAt)
	if err != nil {
		return count, err
	}

	return count, e.advanceWatermark(ctx, integration.OwnerID, models.PlatformGoogle, syncedAt)
}

// syncGoogleFallback covers owners without a Business Profile
// authorization: public reviews via the search proxy when configured, the
// Places details endpoint otherwise.
func (e *Engine) syncGoogleFallback(ctx context.Context, ownerID string, opts GoogleOptions, syncedAt time.Time) (int, error) {
	query := providers.PlaceQuery{
		PlaceID: opts.PlaceID,
		Name:    opts.BusinessName,
		Address: opts.Address,
	}

	var (
		reviews []models.Review
		err     error
	)

	if e.serp != nil {
		var placeID string

		placeID, err = e.places.ResolvePlaceID(ctx, ownerID, query)
		if err != nil {
			return 0, err
		}

		reviews, err = e.serp.FetchReviews(ctx, ownerID, placeID, time.Time{})
	} else {
		reviews, err = e.places.FetchReviews(ctx, ownerID, query, time.Time{})
	}

	if err != nil {
		return 0, err
	}

	return e.upsertAll(ctx, reviews, syncedAt)
}

func (e *Engine) syncMeta(ctx context.Context, ownerID string, syncedAt time.Time) (int, error) {
	integration, err := e.integrations.Get(ctx, ownerID, models.PlatformMeta)
	if err != nil {
		return 0, err
	}

	if !integration.Active() {
		return 0, fmt.Errorf("%w: status %s", models.ErrIntegrationNotActive, integration.Status)
	}

	since := integration.LastSyncedAt

	token, err := e.metaTokens.Token(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	reviews, err := e.meta.FetchReviews(ctx, ownerID, integration.PageID, token, since)
	if err != nil {
		return 0, err
	}

	count, err := e.upsertAll(ctx, reviews, syncedAt)
	if err != nil {
		return count, err
	}

	return count, e.advanceWatermark(ctx, ownerID, models.PlatformMeta, syncedAt)
}

// upsertAll merges fetched reviews by derived id: existing rows get their
// mutable fields overwritten, new rows count towards the result.
func (e *Engine) upsertAll(ctx context.Context, reviews []models.Review, syncedAt time.Time) (int, error) {
	newCount := 0

	for i := range reviews {
		review := reviews[i]
		review.SyncedAt = syncedAt

		_, err := e.reviews.Get(ctx, review.ID)

		switch {
		case errors.Is(err, models.ErrNotFound):
			if err := e.reviews.Insert(ctx, &review); err != nil {
				return newCount, fmt.Errorf("insert review %s: %w", review.ID, err)
			}

			newCount++
		case err != nil:
			return newCount, fmt.Errorf("load review %s: %w", review.ID, err)
		default:
			if err := e.reviews.Update(ctx, &review); err != nil {
				return newCount, fmt.Errorf("update review %s: %w", review.ID, err)
			}
		}
	}

	return newCount, nil
}

// advanceWatermark re-reads the integration before writing so a token
// refresh persisted mid-sync is not clobbered.
func (e *Engine) advanceWatermark(ctx context.Context, ownerID, platform string, syncedAt time.Time) error {
	integration, err := e.integrations.Get(ctx, ownerID, platform)
	if err != nil {
		return fmt.Errorf("reload integration: %w", err)
	}

	integration.LastSyncedAt = syncedAt

	if err := e.integrations.Save(ctx, integration); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}

	return nil
}
