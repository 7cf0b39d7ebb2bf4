package models

import "errors"

// Sentinel errors shared across the sync subsystem. Callers match with
// errors.Is; repositories and services wrap them with context via fmt.Errorf.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrIntegrationNotFound indicates no integration record exists for the
	// requested owner+platform pair.
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrIntegrationNotActive indicates the record exists but its status is
	// expired or revoked; the owner must re-authorize before it can be used.
	ErrIntegrationNotActive = errors.New("integration not active")

	// ErrReauthorizationRequired indicates a token refresh failed
	// irrecoverably. The integration status is set to expired before this is
	// returned, so subsequent calls fail fast without a network round-trip.
	ErrReauthorizationRequired = errors.New("reauthorization required")

	// ErrUpstream indicates a non-2xx or malformed response from a provider.
	// Retrying the sync later may succeed.
	ErrUpstream = errors.New("upstream provider error")

	// ErrEntitlementRequired indicates the owner's plan does not include
	// review sync. Checked once, before any network I/O.
	ErrEntitlementRequired = errors.New("entitlement required")
)
