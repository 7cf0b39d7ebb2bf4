// Package tlmt defines the telemetry contract used to make sync behavior
// observable: per-invocation outcome events and data-quality warnings such
// as the search-proxy timestamp fallback.
package tlmt

import "context"

// Event names emitted by the sync subsystem.
const (
	EventSyncCompleted      = "review_sync.completed"
	EventTimestampFallback  = "review_sync.timestamp_fallback"
	EventTokenRefreshed     = "review_sync.token_refreshed"
	EventReauthRequired     = "review_sync.reauthorization_required"
	EventEntitlementBlocked = "review_sync.entitlement_blocked"
)

type Event struct {
	DistinctID string
	Name       string
	Properties map[string]any
}

// NewEvent builds an event keyed by the owner (or invocation) identifier.
func NewEvent(distinctID, name string, props map[string]any) Event {
	if props == nil {
		props = make(map[string]any)
	}

	return Event{
		DistinctID: distinctID,
		Name:       name,
		Properties: props,
	}
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}
