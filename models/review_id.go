package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ReviewID derives the deterministic review key from a provider-native
// review identity. Re-fetching the same upstream review always resolves to
// the same key, which is what makes the sync upsert idempotent.
func ReviewID(source, nativeID string) string {
	sum := sha256.Sum256([]byte(source + "|" + nativeID))

	return source + "-" + hex.EncodeToString(sum[:16])
}

// SyntheticReviewID derives a review key for providers that expose no stable
// review identifier. The key is built from the review's observable identity
// (author, timestamp, content) instead.
func SyntheticReviewID(source, author string, reviewDate time.Time, comment string) string {
	parts := strings.Join([]string{
		author,
		fmt.Sprintf("%d", reviewDate.Unix()),
		comment,
	}, "|")

	return ReviewID(source, parts)
}
