package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// Registry lists tenant datasources provisioned at runtime, typically the
// workspace table of the shared database.
type Registry interface {
	ActiveDataSources(ctx context.Context) ([]Spec, error)
}

// RegistryFunc adapts a function to Registry.
type RegistryFunc func(ctx context.Context) ([]Spec, error)

// ActiveDataSources implements Registry.
func (f RegistryFunc) ActiveDataSources(ctx context.Context) ([]Spec, error) {
	return f(ctx)
}

// Provisioner builds the router's table from static specs and the registry.
type Provisioner struct {
	router   *Router
	opener   Opener
	static   []Spec
	registry Registry
	logger   *zap.Logger
	parallel int
	grace    time.Duration

	// registered holds the tenants the last reload took from the registry
	registered atomic.Pointer[map[tenancy.ID]struct{}]

	mu       sync.Mutex
	retiring sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// DefaultRetireGrace is how long a replaced datasource stays open after a
// reload.
const DefaultRetireGrace = 30 * time.Second

const drainPollInterval = 50 * time.Millisecond

// ProvisionerOption configures a Provisioner
type ProvisionerOption func(*Provisioner)

// WithStaticSpecs adds datasources from configuration. They win over registry
// entries for the same tenant.
func WithStaticSpecs(specs ...Spec) ProvisionerOption {
	return func(p *Provisioner) { p.static = append(p.static, specs...) }
}

// WithRegistry sets the runtime registry.
func WithRegistry(r Registry) ProvisionerOption {
	return func(p *Provisioner) { p.registry = r }
}

// WithLogger sets the provisioner's logger.
func WithLogger(l *zap.Logger) ProvisionerOption {
	return func(p *Provisioner) { p.logger = l }
}

// WithParallelism bounds how many datasources are opened concurrently.
func WithParallelism(n int) ProvisionerOption {
	return func(p *Provisioner) {
		if n > 0 {
			p.parallel = n
		}
	}
}

// WithRetireGrace sets how long a datasource dropped by a reload keeps serving
// sessions resolved before the swap. Zero closes it as soon as the new table is
// in place.
func WithRetireGrace(d time.Duration) ProvisionerOption {
	return func(p *Provisioner) {
		if d >= 0 {
			p.grace = d
		}
	}
}

// NewProvisioner creates a provisioner feeding router.
func NewProvisioner(router *Router, opener Opener, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		router:   router,
		opener:   opener,
		logger:   zap.NewNop(),
		parallel: 8,
		grace:    DefaultRetireGrace,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reload recomputes the route table and swaps it in. Datasources whose
// settings did not change are reused; new or changed ones are opened in
// parallel. A datasource that fails to open is routed as unavailable unless a
// previous pool for the tenant exists, which is then kept. Pools no longer
// referenced are retired: they stop pooling idle connections and are closed
// once the grace period has passed and no connection is checked out.
//
// A registry failure aborts the reload and leaves the current table in place.
func (p *Provisioner) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	specs, fromRegistry, err := p.collect(ctx)
	if err != nil {
		return err
	}

	routes := make([]Route, len(specs))
	var toOpen []int
	for i, spec := range specs {
		routes[i] = Route{Tenant: spec.Tenant}
		if prev, ok := p.router.Lookup(spec.Tenant); ok && prev.DataSource != nil &&
			prev.DataSource.fingerprint == spec.fingerprint() {
			routes[i].DataSource = prev.DataSource
			continue
		}
		toOpen = append(toOpen, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	var (
		failMu   sync.Mutex
		failures []error
	)
	for _, i := range toOpen {
		g.Go(func() error {
			spec := specs[i]
			ds, err := p.opener.Open(gctx, spec)
			if err == nil {
				routes[i].DataSource = ds
				return nil
			}

			failMu.Lock()
			failures = append(failures, fmt.Errorf("tenant %s: %w", spec.Tenant, err))
			failMu.Unlock()

			if prev, ok := p.router.Lookup(spec.Tenant); ok && prev.DataSource != nil {
				p.logger.Warn("Keeping previous datasource after failed reopen",
					zap.String("tenant_id", spec.Tenant.String()), zap.Error(err))
				routes[i].DataSource = prev.DataSource
				return nil
			}
			p.logger.Error("Datasource unavailable",
				zap.String("tenant_id", spec.Tenant.String()), zap.Error(err))
			routes[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	dropped, err := p.router.Replace(routes)
	if err != nil {
		for _, i := range toOpen {
			if ds := routes[i].DataSource; ds != nil {
				if prev, ok := p.router.Lookup(routes[i].Tenant); !ok || prev.DataSource != ds {
					_ = ds.Close()
				}
			}
		}
		return fmt.Errorf("replace route table: %w", err)
	}
	p.registered.Store(&fromRegistry)
	for _, ds := range dropped {
		p.retire(ds)
	}

	p.logger.Info("Tenant routes reloaded",
		zap.Int("routes", len(routes)),
		zap.Int("opened", len(toOpen)-len(failures)),
		zap.Int("retired", len(dropped)),
		zap.Int("failed", len(failures)),
	)

	return errors.Join(failures...)
}

// Close closes every datasource still draining after a reload without
// waiting for its grace period.
func (p *Provisioner) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.retiring.Wait()
}

func (p *Provisioner) retire(ds *DataSource) {
	if p.grace == 0 {
		p.closeRetired(ds)
		return
	}
	// connections returned from here on are closed instead of pooled
	ds.SQL().SetMaxIdleConns(0)

	p.retiring.Add(1)
	go func() {
		defer p.retiring.Done()
		grace := time.NewTimer(p.grace)
		defer grace.Stop()
		select {
		case <-grace.C:
			p.awaitIdle(ds)
		case <-p.stop:
		}
		p.closeRetired(ds)
	}()
}

// awaitIdle waits for checked-out connections of ds to be returned, for at
// most another grace period.
func (p *Provisioner) awaitIdle(ds *DataSource) {
	deadline := time.NewTimer(p.grace)
	defer deadline.Stop()
	poll := time.NewTicker(drainPollInterval)
	defer poll.Stop()
	for ds.Stats().InUse > 0 {
		select {
		case <-poll.C:
		case <-deadline.C:
			p.logger.Warn("Closing retired datasource with connections in use",
				zap.String("tenant_id", ds.Tenant().String()),
				zap.Int("in_use", ds.Stats().InUse))
			return
		case <-p.stop:
			return
		}
	}
}

func (p *Provisioner) closeRetired(ds *DataSource) {
	if err := ds.Close(); err != nil {
		p.logger.Warn("Failed to close retired datasource",
			zap.String("tenant_id", ds.Tenant().String()), zap.Error(err))
		return
	}
	p.logger.Debug("Retired datasource closed", zap.String("tenant_id", ds.Tenant().String()))
}

// Registered reports whether id was routed from the registry by the last
// successful reload. Static and default tenants are never registered.
func (p *Provisioner) Registered(id tenancy.ID) bool {
	set := p.registered.Load()
	if set == nil {
		return false
	}
	_, ok := (*set)[id]
	return ok
}

// collect merges static specs and registry specs, static first, and returns
// the set of tenants taken from the registry.
func (p *Provisioner) collect(ctx context.Context) ([]Spec, map[tenancy.ID]struct{}, error) {
	seen := make(map[tenancy.ID]struct{}, len(p.static))
	specs := make([]Spec, 0, len(p.static))
	for _, s := range p.static {
		if s.Tenant.IsZero() || p.router.IsDefault(s.Tenant) {
			continue
		}
		if _, dup := seen[s.Tenant]; dup {
			continue
		}
		seen[s.Tenant] = struct{}{}
		specs = append(specs, s)
	}

	registered := map[tenancy.ID]struct{}{}
	if p.registry == nil {
		return specs, registered, nil
	}
	fromRegistry, err := p.registry.ActiveDataSources(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load tenant registry: %w", err)
	}
	for _, s := range fromRegistry {
		if s.Tenant.IsZero() || p.router.IsDefault(s.Tenant) {
			continue
		}
		if _, dup := seen[s.Tenant]; dup {
			p.logger.Debug("Registry entry shadowed by static datasource",
				zap.String("tenant_id", s.Tenant.String()))
			continue
		}
		seen[s.Tenant] = struct{}{}
		registered[s.Tenant] = struct{}{}
		specs = append(specs, s)
	}
	return specs, registered, nil
}
