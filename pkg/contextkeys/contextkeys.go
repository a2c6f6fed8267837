// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application must be defined here to
// prevent typos and keep key usage discoverable.
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// TenantKey contains *tenant.Context
	// Set by: api.TenantMiddleware
	// Required by: all org-scoped handlers
	TenantKey Key = "tenant_context"

	// PrincipalKey contains the external principal ID string
	// Set by: api.PrincipalMiddleware
	PrincipalKey Key = "principal_id"

	// SessionIDKey contains the session ID string
	// Set by: api.PrincipalMiddleware
	SessionIDKey Key = "session_id"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: api.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"
)
