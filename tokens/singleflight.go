package tokens

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Deduped collapses concurrent Token calls for the same owner into one
// underlying call, so racing sync invocations share a single refresh instead
// of hitting the provider twice.
type Deduped struct {
	inner    Manager
	platform string
	group    singleflight.Group
}

func NewDeduped(inner Manager, platform string) *Deduped {
	return &Deduped{inner: inner, platform: platform}
}

func (d *Deduped) Token(ctx context.Context, ownerID string) (string, error) {
	v, err, _ := d.group.Do(d.platform+"|"+ownerID, func() (any, error) {
		return d.inner.Token(ctx, ownerID)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}
