package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/models"
	"github.com/openfeedback/review-sync/pkg/encryption"
	"github.com/openfeedback/review-sync/tlmt"
)

// DefaultGraphBaseURL is the Meta Graph API root used unless overridden.
const DefaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// Page tokens returned by the long-lived exchange commonly live ~60 days;
// used when the Graph API reports no explicit expiry.
const defaultPageTokenLifetime = 60 * 24 * time.Hour

// MetaConfig carries the Meta app credentials. BaseURL defaults to
// DefaultGraphBaseURL and is overridable for tests.
type MetaConfig struct {
	AppID     string
	AppSecret string
	BaseURL   string
}

// Meta manages Facebook page access tokens. Page tokens are long-lived, so
// the manager first probes validity via debug_token; only when the token is
// invalid does it re-mint a page token from the stored user token and extend
// it to a long-lived one.
type Meta struct {
	repo      models.IntegrationRepository
	vault     *encryption.Vault
	cfg       MetaConfig
	client    *http.Client
	logger    *zap.Logger
	telemetry tlmt.Telemetry
	now       func() time.Time
}

func NewMeta(repo models.IntegrationRepository, vault *encryption.Vault, cfg MetaConfig, logger *zap.Logger, telemetry tlmt.Telemetry) *Meta {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}

	return &Meta{
		repo:      repo,
		vault:     vault,
		cfg:       cfg,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
		telemetry: telemetry,
		now:       time.Now,
	}
}

// Token returns a valid plaintext page access token for the owner's Meta
// integration.
func (m *Meta) Token(ctx context.Context, ownerID string) (string, error) {
	integration, err := m.repo.Get(ctx, ownerID, models.PlatformMeta)
	if err != nil {
		return "", err
	}

	if !integration.Active() {
		return "", fmt.Errorf("%w: status %s", models.ErrIntegrationNotActive, integration.Status)
	}

	pageToken, err := m.vault.Decrypt(string(integration.AccessToken))
	if err != nil {
		return "", err
	}

	if m.now().Add(ExpirySkew).Before(integration.Expiry) {
		return pageToken, nil
	}

	valid, expiresAt, err := m.debugToken(ctx, pageToken)
	if err != nil {
		return "", fmt.Errorf("%w: debug_token: %v", models.ErrUpstream, err)
	}

	if valid {
		if expiresAt.IsZero() {
			expiresAt = m.now().Add(defaultPageTokenLifetime)
		}

		if !expiresAt.Equal(integration.Expiry) {
			integration.Expiry = expiresAt
			if err := m.repo.Save(ctx, integration); err != nil {
				return "", fmt.Errorf("persist expiry: %w", err)
			}
		}

		return pageToken, nil
	}

	return m.remint(ctx, integration)
}

// remint mints a fresh page token from the stored user token, then extends
// it to a long-lived token. Any step that fails to produce a token is
// terminal until the owner re-authorizes.
func (m *Meta) remint(ctx context.Context, integration *models.Integration) (string, error) {
	userToken, err := m.vault.Decrypt(string(integration.UserToken))
	if err != nil {
		return "", err
	}

	pageToken, err := m.fetchPageToken(ctx, integration.PageID, userToken)
	if err != nil || pageToken == "" {
		return "", m.markExpired(ctx, integration, err)
	}

	longToken, expiresIn, err := m.extendToken(ctx, pageToken)
	if err != nil || longToken == "" {
		return "", m.markExpired(ctx, integration, err)
	}

	encrypted, err := m.vault.Encrypt(longToken)
	if err != nil {
		return "", fmt.Errorf("encrypt page token: %w", err)
	}

	lifetime := defaultPageTokenLifetime
	if expiresIn > 0 {
		lifetime = time.Duration(expiresIn) * time.Second
	}

	integration.AccessToken = []byte(encrypted)
	integration.Expiry = m.now().Add(lifetime)

	if err := m.repo.Save(ctx, integration); err != nil {
		return "", fmt.Errorf("persist reminted token: %w", err)
	}

	m.logger.Info("reminted meta page token",
		zap.String("owner_id", integration.OwnerID),
		zap.String("page_id", integration.PageID),
		zap.Time("expiry", integration.Expiry))

	_ = m.telemetry.Send(ctx, tlmt.NewEvent(integration.OwnerID, tlmt.EventTokenRefreshed, map[string]any{
		"platform": models.PlatformMeta,
	}))

	return longToken, nil
}

// debugToken asks the Graph API whether a page token is still valid.
func (m *Meta) debugToken(ctx context.Context, pageToken string) (bool, time.Time, error) {
	query := url.Values{}
	query.Set("input_token", pageToken)
	query.Set("access_token", m.cfg.AppID+"|"+m.cfg.AppSecret)

	var ans struct {
		Data struct {
			IsValid   bool  `json:"is_valid"`
			ExpiresAt int64 `json:"expires_at"`
		} `json:"data"`
	}

	if err := m.getJSON(ctx, "/debug_token", query, &ans); err != nil {
		return false, time.Time{}, err
	}

	var expiresAt time.Time
	if ans.Data.ExpiresAt > 0 {
		expiresAt = time.Unix(ans.Data.ExpiresAt, 0).UTC()
	}

	return ans.Data.IsValid, expiresAt, nil
}

// fetchPageToken mints a page access token from a user token.
func (m *Meta) fetchPageToken(ctx context.Context, pageID, userToken string) (string, error) {
	query := url.Values{}
	query.Set("fields", "access_token")
	query.Set("access_token", userToken)

	var ans struct {
		AccessToken string `json:"access_token"`
	}

	if err := m.getJSON(ctx, "/"+pageID, query, &ans); err != nil {
		return "", err
	}

	return ans.AccessToken, nil
}

// extendToken exchanges a short-lived token for a long-lived one.
func (m *Meta) extendToken(ctx context.Context, token string) (string, int64, error) {
	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", m.cfg.AppID)
	query.Set("client_secret", m.cfg.AppSecret)
	query.Set("fb_exchange_token", token)

	var ans struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}

	if err := m.getJSON(ctx, "/oauth/access_token", query, &ans); err != nil {
		return "", 0, err
	}

	return ans.AccessToken, ans.ExpiresIn, nil
}

// ManagedPage is an entry from the user's /me/accounts listing.
type ManagedPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// ListManagedPages lists the pages a user token can administer. The
// authorization handshake uses it to pick the page to connect.
func (m *Meta) ListManagedPages(ctx context.Context, userToken string) ([]ManagedPage, error) {
	query := url.Values{}
	query.Set("access_token", userToken)

	var ans struct {
		Data []ManagedPage `json:"data"`
	}

	if err := m.getJSON(ctx, "/me/accounts", query, &ans); err != nil {
		return nil, fmt.Errorf("%w: list pages: %v", models.ErrUpstream, err)
	}

	return ans.Data, nil
}

func (m *Meta) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("graph responded %d: %s", resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (m *Meta) markExpired(ctx context.Context, integration *models.Integration, cause error) error {
	integration.Status = models.IntegrationStatusExpired

	if err := m.repo.Save(ctx, integration); err != nil {
		m.logger.Error("failed to persist expired status",
			zap.String("owner_id", integration.OwnerID), zap.Error(err))
	}

	m.logger.Warn("meta token remint failed, reauthorization required",
		zap.String("owner_id", integration.OwnerID),
		zap.String("page_id", integration.PageID),
		zap.Error(cause))

	_ = m.telemetry.Send(ctx, tlmt.NewEvent(integration.OwnerID, tlmt.EventReauthRequired, map[string]any{
		"platform": models.PlatformMeta,
	}))

	if cause != nil {
		return fmt.Errorf("%w: %v", models.ErrReauthorizationRequired, cause)
	}

	return fmt.Errorf("%w: graph returned no page token", models.ErrReauthorizationRequired)
}
