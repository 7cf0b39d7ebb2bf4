package tokens

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/openfeedback/review-sync/models"
	"github.com/openfeedback/review-sync/pkg/encryption"
	"github.com/openfeedback/review-sync/tlmt"
)

// GoogleConfig carries the OAuth2 client credentials used for refresh-token
// exchange. Endpoint defaults to Google's and is overridable for tests.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
}

// Google manages Google Business Profile access tokens.
type Google struct {
	repo      models.IntegrationRepository
	vault     *encryption.Vault
	cfg       oauth2.Config
	logger    *zap.Logger
	telemetry tlmt.Telemetry
	now       func() time.Time
}

func NewGoogle(repo models.IntegrationRepository, vault *encryption.Vault, cfg GoogleConfig, logger *zap.Logger, telemetry tlmt.Telemetry) *Google {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	return &Google{
		repo:  repo,
		vault: vault,
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
		},
		logger:    logger,
		telemetry: telemetry,
		now:       time.Now,
	}
}

// Token returns a valid plaintext access token for the owner's Google
// integration, refreshing via the OAuth2 token endpoint when the stored one
// is near expiry.
func (g *Google) Token(ctx context.Context, ownerID string) (string, error) {
	integration, err := g.repo.Get(ctx, ownerID, models.PlatformGoogle)
	if err != nil {
		return "", err
	}

	if !integration.Active() {
		return "", fmt.Errorf("%w: status %s", models.ErrIntegrationNotActive, integration.Status)
	}

	if g.now().Add(ExpirySkew).Before(integration.Expiry) {
		return g.vault.Decrypt(string(integration.AccessToken))
	}

	return g.refresh(ctx, integration)
}

func (g *Google) refresh(ctx context.Context, integration *models.Integration) (string, error) {
	refreshToken, err := g.vault.Decrypt(string(integration.RefreshToken))
	if err != nil {
		return "", err
	}

	source := g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := source.Token()
	if err != nil || token.AccessToken == "" {
		return "", g.markExpired(ctx, integration, err)
	}

	encryptedAccess, err := g.vault.Encrypt(token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}

	integration.AccessToken = []byte(encryptedAccess)
	integration.Expiry = token.Expiry

	// Google occasionally rotates the refresh token as well.
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		encryptedRefresh, err := g.vault.Encrypt(token.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("encrypt refresh token: %w", err)
		}

		integration.RefreshToken = []byte(encryptedRefresh)
	}

	if err := g.repo.Save(ctx, integration); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	g.logger.Info("refreshed google access token",
		zap.String("owner_id", integration.OwnerID),
		zap.Time("expiry", token.Expiry))

	_ = g.telemetry.Send(ctx, tlmt.NewEvent(integration.OwnerID, tlmt.EventTokenRefreshed, map[string]any{
		"platform": models.PlatformGoogle,
	}))

	return token.AccessToken, nil
}

func (g *Google) markExpired(ctx context.Context, integration *models.Integration, cause error) error {
	integration.Status = models.IntegrationStatusExpired

	if err := g.repo.Save(ctx, integration); err != nil {
		g.logger.Error("failed to persist expired status",
			zap.String("owner_id", integration.OwnerID), zap.Error(err))
	}

	g.logger.Warn("google token refresh failed, reauthorization required",
		zap.String("owner_id", integration.OwnerID), zap.Error(cause))

	_ = g.telemetry.Send(ctx, tlmt.NewEvent(integration.OwnerID, tlmt.EventReauthRequired, map[string]any{
		"platform": models.PlatformGoogle,
	}))

	if cause != nil {
		return fmt.Errorf("%w: %v", models.ErrReauthorizationRequired, cause)
	}

	return fmt.Errorf("%w: token endpoint returned no access token", models.ErrReauthorizationRequired)
}
