package models

import (
	"context"
	"time"
)

// Platform identifies the integration side of a sync (one Integration row
// per owner and platform). Reviews carry their own source labels because a
// single Meta integration can produce both facebook and instagram reviews.
const (
	PlatformGoogle = "google"
	PlatformMeta   = "meta"
)

// Review source labels.
const (
	SourceGoogle    = "google"
	SourceFacebook  = "facebook"
	SourceInstagram = "instagram"
)

// Integration statuses.
const (
	IntegrationStatusActive  = "active"
	IntegrationStatusExpired = "expired"
	IntegrationStatusRevoked = "revoked"
)

// Integration represents an external review source connected by an owner.
// Token fields hold vault ciphertext, never plaintext.
type Integration struct {
	OwnerID  string `json:"owner_id"`
	Platform string `json:"platform"`

	// Provider-specific resource addressing.
	LocationPath string `json:"location_path,omitempty"` // google: accounts/{a}/locations/{l}
	PageID       string `json:"page_id,omitempty"`       // meta
	InstagramID  string `json:"instagram_id,omitempty"`  // meta, optional

	AccessToken  []byte `json:"-"` // stored encrypted
	RefreshToken []byte `json:"-"` // stored encrypted
	UserToken    []byte `json:"-"` // meta only: short-lived user token, stored encrypted

	Expiry       time.Time `json:"expiry"`
	LastSyncedAt time.Time `json:"last_synced_at"` // incremental fetch watermark
	Status       string    `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the integration may be used for fetching.
func (i *Integration) Active() bool {
	return i.Status == IntegrationStatusActive
}

// Review is the unified shape every provider adapter normalizes into.
type Review struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Platform   string    `json:"platform"` // google | facebook | instagram
	Author     string    `json:"author"`
	Rating     int       `json:"rating"` // 1..5, 0 when the provider reported none
	Comment    string    `json:"comment"`
	ReviewDate time.Time `json:"review_date"`
	SyncedAt   time.Time `json:"synced_at"`
}

// IntegrationRepository manages integration records keyed by owner+platform.
type IntegrationRepository interface {
	Get(ctx context.Context, ownerID, platform string) (*Integration, error)
	Save(ctx context.Context, integration *Integration) error
	SelectByOwner(ctx context.Context, ownerID string) ([]Integration, error)
}

// ReviewRepository manages synced reviews keyed by their derived id.
type ReviewRepository interface {
	Get(ctx context.Context, id string) (*Review, error)
	Insert(ctx context.Context, review *Review) error
	Update(ctx context.Context, review *Review) error
	SelectByOwner(ctx context.Context, ownerID string) ([]Review, error)
	CountByRating(ctx context.Context, ownerID string) (map[int]int, error)
}
