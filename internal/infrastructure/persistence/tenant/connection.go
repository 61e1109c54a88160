package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// ConnectionProvider checks out raw connections from the pool of the tenant
// active in the caller's context.
type ConnectionProvider struct {
	router   *Router
	resolver *tenancy.IdentifierResolver
}

// NewConnectionProvider creates a provider over router.
func NewConnectionProvider(router *Router, resolver *tenancy.IdentifierResolver) *ConnectionProvider {
	if resolver == nil {
		resolver = tenancy.NewIdentifierResolver("")
	}
	return &ConnectionProvider{router: router, resolver: resolver}
}

// Acquire checks out a connection for the tenant active in ctx, or for the
// resolver's fallback when there is none.
func (p *ConnectionProvider) Acquire(ctx context.Context) (*Conn, error) {
	return p.AcquireFor(ctx, p.resolver.ResolveCurrentTenantIdentifier(ctx))
}

// AcquireFor checks out a connection from id's datasource. An unknown tenant
// fails before any pool is touched.
func (p *ConnectionProvider) AcquireFor(ctx context.Context, id tenancy.ID) (*Conn, error) {
	ds, err := p.router.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	conn, err := ds.SQL().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tenancy.ErrConnectionUnavailable, id, err)
	}
	return &Conn{Conn: conn, tenant: id, source: ds}, nil
}

// Conn is a connection checked out for one tenant. Release returns it to the
// pool it came from.
type Conn struct {
	*sql.Conn
	tenant tenancy.ID
	source *DataSource

	once sync.Once
	err  error
}

// Tenant returns the tenant the connection was acquired for.
func (c *Conn) Tenant() tenancy.ID { return c.tenant }

// DataSource returns the datasource the connection belongs to.
func (c *Conn) DataSource() *DataSource { return c.source }

// Release returns the connection to its tenant's pool. Calling it again is a
// no-op that reports the first result.
func (c *Conn) Release() error {
	c.once.Do(func() { c.err = c.Conn.Close() })
	return c.err
}
