package tenant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

const meterName = "github.com/ampairs/backend/internal/infrastructure/persistence/tenant"

// Route maps a tenant to its datasource. A route with Err set is known but
// could not be opened; resolving it reports the datasource as unavailable.
type Route struct {
	Tenant     tenancy.ID
	DataSource *DataSource
	Err        error
}

// routeTable is immutable once published.
type routeTable struct {
	def    *DataSource
	routes map[tenancy.ID]Route
}

// Router resolves tenant identifiers to datasources. Lookups are lock-free
// reads of an immutable table; writers build a new table and swap it in.
type Router struct {
	table atomic.Pointer[routeTable]
	mu    sync.Mutex

	defaultID   tenancy.ID
	resolutions metric.Int64Counter
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithMeter records routing metrics on meter instead of the global provider.
func WithMeter(meter metric.Meter) RouterOption {
	return func(r *Router) { r.resolutions = newResolutionCounter(meter) }
}

// WithDefaultTenant makes id an alias of DefaultID: it resolves to the default
// datasource and cannot be routed elsewhere. Deployments that name their
// shared tenant (default_tenant) need this so tenant-less requests, which fall
// back to that name, still reach the shared database.
func WithDefaultTenant(id tenancy.ID) RouterOption {
	return func(r *Router) { r.defaultID = id }
}

// NewRouter creates a router whose DefaultID route is def.
func NewRouter(def *DataSource, opts ...RouterOption) *Router {
	r := &Router{}
	r.table.Store(&routeTable{def: def, routes: map[tenancy.ID]Route{}})
	for _, opt := range opts {
		opt(r)
	}
	if r.resolutions == nil {
		r.resolutions = newResolutionCounter(otel.Meter(meterName))
	}
	return r
}

func newResolutionCounter(meter metric.Meter) metric.Int64Counter {
	c, err := meter.Int64Counter("tenancy.route.resolutions",
		metric.WithDescription("Tenant datasource resolutions by outcome"),
	)
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("tenancy.route.resolutions")
	}
	return c
}

func (r *Router) record(ctx context.Context, outcome string) {
	r.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// IsDefault reports whether id is served by the default datasource.
func (r *Router) IsDefault(id tenancy.ID) bool {
	return id.IsDefault() || (!r.defaultID.IsZero() && id == r.defaultID)
}

// Resolve returns the datasource of id. DefaultID and the configured default
// tenant resolve to the default datasource; any other identifier without a route fails with
// tenancy.ErrUnknownTenant and is never served by the default datasource.
func (r *Router) Resolve(ctx context.Context, id tenancy.ID) (*DataSource, error) {
	t := r.table.Load()

	if id.IsZero() {
		r.record(ctx, "missing")
		return nil, tenancy.ErrMissingTenantContext
	}
	if r.IsDefault(id) {
		if t.def == nil {
			r.record(ctx, "unavailable")
			return nil, fmt.Errorf("%w: no default datasource", tenancy.ErrConnectionUnavailable)
		}
		r.record(ctx, "default")
		return t.def, nil
	}

	route, ok := t.routes[id]
	switch {
	case !ok:
		r.record(ctx, "unknown")
		return nil, fmt.Errorf("%w: %s", tenancy.ErrUnknownTenant, id)
	case route.Err != nil:
		r.record(ctx, "unavailable")
		return nil, fmt.Errorf("%w: %s: %w", tenancy.ErrConnectionUnavailable, id, route.Err)
	}
	r.record(ctx, "routed")
	return route.DataSource, nil
}

// Default returns the default datasource.
func (r *Router) Default() *DataSource {
	return r.table.Load().def
}

// Lookup returns the route of id without recording metrics.
func (r *Router) Lookup(id tenancy.ID) (Route, bool) {
	route, ok := r.table.Load().routes[id]
	return route, ok
}

// Knows reports whether id resolves to a datasource or a known unavailable
// route, as opposed to being an identifier nobody provisioned.
func (r *Router) Knows(id tenancy.ID) bool {
	if r.IsDefault(id) {
		return true
	}
	_, ok := r.table.Load().routes[id]
	return ok
}

// Tenants returns the routed tenant identifiers in sorted order.
func (r *Router) Tenants() []tenancy.ID {
	t := r.table.Load()
	ids := make([]tenancy.ID, 0, len(t.routes))
	for id := range t.routes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of tenant routes, excluding the default.
func (r *Router) Len() int {
	return len(r.table.Load().routes)
}

// Replace atomically installs routes as the new table and returns the
// datasources of the previous table that are no longer referenced. The caller
// owns them and should close them once in-flight work has drained.
func (r *Router) Replace(routes []Route) ([]*DataSource, error) {
	next := make(map[tenancy.ID]Route, len(routes))
	for _, route := range routes {
		if err := r.validateRoute(route); err != nil {
			return nil, err
		}
		if _, dup := next[route.Tenant]; dup {
			return nil, fmt.Errorf("duplicate route for tenant %q", route.Tenant)
		}
		next[route.Tenant] = route
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.table.Load()
	r.table.Store(&routeTable{def: prev.def, routes: next})

	kept := make(map[*DataSource]struct{}, len(next))
	for _, route := range next {
		if route.DataSource != nil {
			kept[route.DataSource] = struct{}{}
		}
	}
	var dropped []*DataSource
	for _, route := range prev.routes {
		if route.DataSource == nil {
			continue
		}
		if _, ok := kept[route.DataSource]; !ok {
			dropped = append(dropped, route.DataSource)
		}
	}
	return dropped, nil
}

// Add installs or replaces the route of one tenant and returns the datasource
// it displaced, if any.
func (r *Router) Add(route Route) (*DataSource, error) {
	if err := r.validateRoute(route); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.table.Load()
	next := make(map[tenancy.ID]Route, len(prev.routes)+1)
	for id, existing := range prev.routes {
		next[id] = existing
	}
	next[route.Tenant] = route
	r.table.Store(&routeTable{def: prev.def, routes: next})

	if old, ok := prev.routes[route.Tenant]; ok && old.DataSource != route.DataSource {
		return old.DataSource, nil
	}
	return nil, nil
}

// Remove deletes the route of id and returns its datasource.
func (r *Router) Remove(id tenancy.ID) (*DataSource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.table.Load()
	old, ok := prev.routes[id]
	if !ok {
		return nil, false
	}
	next := make(map[tenancy.ID]Route, len(prev.routes))
	for tid, route := range prev.routes {
		if tid != id {
			next[tid] = route
		}
	}
	r.table.Store(&routeTable{def: prev.def, routes: next})
	return old.DataSource, true
}

// Close closes the default datasource and every routed datasource.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.table.Load()
	r.table.Store(&routeTable{def: nil, routes: map[tenancy.ID]Route{}})

	var errs []error
	if t.def != nil {
		errs = append(errs, t.def.Close())
	}
	for _, route := range t.routes {
		if route.DataSource != nil {
			errs = append(errs, route.DataSource.Close())
		}
	}
	return errors.Join(errs...)
}

func (r *Router) validateRoute(route Route) error {
	switch {
	case route.Tenant.IsZero():
		return fmt.Errorf("%w: empty tenant in route", tenancy.ErrInvalidTenantID)
	case r.IsDefault(route.Tenant):
		return fmt.Errorf("tenant %q is served by the default datasource and cannot be routed", route.Tenant)
	case route.DataSource == nil && route.Err == nil:
		return fmt.Errorf("route for tenant %q has no datasource", route.Tenant)
	}
	return nil
}
