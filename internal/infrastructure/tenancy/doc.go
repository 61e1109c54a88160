// Package tenancy holds the per-request tenant context of the Ampairs backend.
//
// A Holder stores the tenant that is active for one unit of work (an inbound
// request, an event delivery, an explicit Run scope). It travels inside
// context.Context rather than in goroutine-local state, so any code that
// receives the request context sees the same tenant, and work handed off to
// another goroutine has to carry it explicitly through Detach.
//
// Usage:
//
//	h := tenancy.NewHolder()
//	ctx = tenancy.NewContext(ctx, h)
//	h.Set("acme-corp")
//	defer h.Clear()
//
//	id, ok := tenancy.FromContext(ctx)        // lenient
//	id, err := tenancy.RequireFromContext(ctx) // strict, ErrMissingTenantContext
//
// The persistence layer asks an IdentifierResolver for the tenant instead of
// reading the context directly; the resolver falls back to DefaultID for
// tenant-agnostic work such as health checks and startup.
package tenancy
