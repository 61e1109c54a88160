package tenancy

import "context"

// IdentifierResolver answers "which tenant is current" for the persistence
// layer. It never fails: without an active tenant it reports the fallback,
// which is DefaultID unless configured otherwise.
type IdentifierResolver struct {
	fallback ID
}

// NewIdentifierResolver creates a resolver. An empty fallback means DefaultID.
func NewIdentifierResolver(fallback ID) *IdentifierResolver {
	if fallback == "" {
		fallback = DefaultID
	}
	return &IdentifierResolver{fallback: fallback}
}

// ResolveCurrentTenantIdentifier returns the tenant active in ctx or the fallback.
func (r *IdentifierResolver) ResolveCurrentTenantIdentifier(ctx context.Context) ID {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	return r.fallback
}

// ValidateExistingCurrentSessions reports whether open sessions must follow
// tenant changes. They must not: a session is bound to one tenant when it is
// acquired and is never re-pointed.
func (r *IdentifierResolver) ValidateExistingCurrentSessions() bool {
	return false
}

// Fallback returns the identifier used when no tenant is active.
func (r *IdentifierResolver) Fallback() ID {
	return r.fallback
}
