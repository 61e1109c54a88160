package tenancy

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// NewContext returns a copy of ctx carrying h.
func NewContext(ctx context.Context, h *Holder) context.Context {
	return context.WithValue(ctx, contextKey{}, h)
}

// HolderFromContext returns the holder installed by NewContext.
func HolderFromContext(ctx context.Context) (*Holder, bool) {
	if ctx == nil {
		return nil, false
	}
	h, ok := ctx.Value(contextKey{}).(*Holder)
	return h, ok && h != nil
}

// FromContext returns the tenant active in ctx, or false when there is none.
func FromContext(ctx context.Context) (ID, bool) {
	h, ok := HolderFromContext(ctx)
	if !ok {
		return "", false
	}
	return h.Get()
}

// RequireFromContext returns the tenant active in ctx or ErrMissingTenantContext.
func RequireFromContext(ctx context.Context) (ID, error) {
	if id, ok := FromContext(ctx); ok {
		return id, nil
	}
	return "", ErrMissingTenantContext
}

// ContextWithTenant returns a copy of ctx with a new holder in which id is active.
func ContextWithTenant(ctx context.Context, id ID) context.Context {
	return NewContext(ctx, NewHolderWith(id))
}

// Detach returns a context for work that outlives or runs beside the current
// unit of work: it keeps ctx's values and deadline but gets its own holder,
// seeded with the tenant active right now. Clearing the original holder at
// request exit does not affect the detached one.
func Detach(ctx context.Context) context.Context {
	id, _ := FromContext(ctx)
	return NewContext(ctx, NewHolderWith(id))
}

// Principal is an authenticated identity that may carry tenant affinity.
type Principal interface {
	TenantID() string
}
