// Package providers contains one adapter per upstream review source. Each
// adapter owns its provider's wire format and normalizes responses into the
// unified Review shape; the sync engine never sees provider-native payloads.
//
// Adapters substitute documented defaults for partially-missing fields
// (author "Anonymous", rating 0, empty comment). A malformed single review
// never aborts a fetch.
package providers

import (
	"fmt"
	"io"
	"math"
	"net/http"
)

// DefaultAuthor is used when a provider omits the reviewer's name.
const DefaultAuthor = "Anonymous"

const maxResponseBytes = 4 << 20

// normalizeRating maps provider rating scales onto integers 1..5. Decimal
// values are rounded half-up and clamped; non-positive input means "no
// rating reported" and stays 0.
func normalizeRating(v float64) int {
	if v <= 0 {
		return 0
	}

	rating := int(math.Round(v))

	if rating < 1 {
		rating = 1
	}

	if rating > 5 {
		rating = 5
	}

	return rating
}

func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}

	return string(b[:n]) + "..."
}
