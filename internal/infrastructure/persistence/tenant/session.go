package tenant

import (
	"context"

	"gorm.io/gorm"

	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// boundTenantKey marks a statement context with the tenant its session was opened for.
type boundTenantKey struct{}

func withBoundTenant(ctx context.Context, id tenancy.ID) context.Context {
	return context.WithValue(ctx, boundTenantKey{}, id)
}

// BoundTenant returns the tenant a session context was bound to by SessionFactory.
func BoundTenant(ctx context.Context) (tenancy.ID, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(boundTenantKey{}).(tenancy.ID)
	return id, ok
}

// SessionFactory hands out gorm sessions on the datasource of the tenant
// active in the caller's context. Sessions are short-lived: take one per unit
// of work and do not keep it across a tenant switch.
type SessionFactory struct {
	router   *Router
	resolver *tenancy.IdentifierResolver
}

// NewSessionFactory creates a factory over router.
func NewSessionFactory(router *Router, resolver *tenancy.IdentifierResolver) *SessionFactory {
	if resolver == nil {
		resolver = tenancy.NewIdentifierResolver("")
	}
	return &SessionFactory{router: router, resolver: resolver}
}

// Resolver returns the identifier resolver used by the factory.
func (f *SessionFactory) Resolver() *tenancy.IdentifierResolver {
	return f.resolver
}

// Session returns a gorm session bound to the tenant active in ctx.
func (f *SessionFactory) Session(ctx context.Context) (*gorm.DB, error) {
	id := f.resolver.ResolveCurrentTenantIdentifier(ctx)
	ds, err := f.router.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return ds.Gorm().WithContext(withBoundTenant(ctx, id)), nil
}

// Transaction runs fn in a transaction on the datasource of the tenant active in ctx.
func (f *SessionFactory) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, err := f.Session(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(fn)
}
