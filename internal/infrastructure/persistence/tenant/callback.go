package tenant

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// IsolationGuard rejects statements executed through a session whose bound
// tenant is no longer the tenant active in the statement's context, e.g. a
// session taken before a Push and used inside it.
type IsolationGuard struct {
	resolver *tenancy.IdentifierResolver
}

// NewIsolationGuard creates a guard resolving the active tenant with resolver.
func NewIsolationGuard(resolver *tenancy.IdentifierResolver) *IsolationGuard {
	if resolver == nil {
		resolver = tenancy.NewIdentifierResolver("")
	}
	return &IsolationGuard{resolver: resolver}
}

// Register installs the guard on every statement kind of db.
func (g *IsolationGuard) Register(db *gorm.DB) error {
	cb := db.Callback()
	regs := []struct {
		name string
		fn   func() error
	}{
		{"query", func() error { return cb.Query().Before("gorm:query").Register("tenancy:guard_query", g.check) }},
		{"row", func() error { return cb.Row().Before("gorm:row").Register("tenancy:guard_row", g.check) }},
		{"raw", func() error { return cb.Raw().Before("gorm:raw").Register("tenancy:guard_raw", g.check) }},
		{"create", func() error { return cb.Create().Before("gorm:create").Register("tenancy:guard_create", g.check) }},
		{"update", func() error { return cb.Update().Before("gorm:update").Register("tenancy:guard_update", g.check) }},
		{"delete", func() error { return cb.Delete().Before("gorm:delete").Register("tenancy:guard_delete", g.check) }},
	}
	for _, r := range regs {
		if err := r.fn(); err != nil {
			return fmt.Errorf("register tenancy guard for %s: %w", r.name, err)
		}
	}
	return nil
}

func (g *IsolationGuard) check(db *gorm.DB) {
	ctx := db.Statement.Context
	bound, ok := BoundTenant(ctx)
	if !ok {
		// not opened through SessionFactory
		return
	}
	if current := g.resolver.ResolveCurrentTenantIdentifier(ctx); current != bound {
		_ = db.AddError(fmt.Errorf("%w: session bound to %s, active tenant is %s",
			tenancy.ErrTenantMismatch, bound, current))
	}
}
