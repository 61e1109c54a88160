package tenancy

import "errors"

var (
	// ErrMissingTenantContext is returned by strict accessors when no tenant is active.
	ErrMissingTenantContext = errors.New("tenant context is missing")

	// ErrInvalidTenantID is returned when an identifier is malformed.
	ErrInvalidTenantID = errors.New("invalid tenant identifier")

	// ErrUnknownTenant is returned when an identifier has no backing datasource.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrConnectionUnavailable wraps failures to obtain a connection for a known tenant.
	ErrConnectionUnavailable = errors.New("tenant connection unavailable")

	// ErrTenantMismatch is returned when a statement runs on a session bound to another tenant.
	ErrTenantMismatch = errors.New("session bound to a different tenant")
)
