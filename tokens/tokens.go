// Package tokens implements the per-platform token lifecycle: given an
// owner, return a currently valid plaintext access token, refreshing and
// re-encrypting through the vault as needed. Irrecoverable refresh failures
// flip the integration to expired so later calls fail fast.
package tokens

import (
	"context"
	"time"
)

// ExpirySkew is subtracted from the stored expiry: tokens inside this window
// are refreshed before use so they cannot expire mid-fetch.
const ExpirySkew = 5 * time.Minute

// Manager is the shared token lifecycle contract, one implementation per
// platform.
type Manager interface {
	Token(ctx context.Context, ownerID string) (string, error)
}
