package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// PoolSource lists the datasources whose pools are reported.
type PoolSource interface {
	Default() *tenant.DataSource
	Tenants() []tenancy.ID
	Lookup(id tenancy.ID) (tenant.Route, bool)
}

// RegisterPoolMetrics reports connection pool gauges for the default
// datasource and every routed tenant on each collection. Tenants routed as
// unavailable have no pool and are skipped.
func RegisterPoolMetrics(meter metric.Meter, src PoolSource) (metric.Registration, error) {
	open, err := meter.Int64ObservableGauge("db.pool.connections.open",
		metric.WithDescription("Open connections per tenant datasource"))
	if err != nil {
		return nil, err
	}
	inUse, err := meter.Int64ObservableGauge("db.pool.connections.in_use",
		metric.WithDescription("Connections currently in use per tenant datasource"))
	if err != nil {
		return nil, err
	}
	idle, err := meter.Int64ObservableGauge("db.pool.connections.idle",
		metric.WithDescription("Idle connections per tenant datasource"))
	if err != nil {
		return nil, err
	}
	waits, err := meter.Int64ObservableCounter("db.pool.wait_count",
		metric.WithDescription("Total waits for a connection per tenant datasource"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		observe := func(ds *tenant.DataSource) {
			s := ds.Stats()
			attrs := metric.WithAttributes(attribute.String(TenantAttribute, ds.Tenant().String()))
			o.ObserveInt64(open, int64(s.OpenConnections), attrs)
			o.ObserveInt64(inUse, int64(s.InUse), attrs)
			o.ObserveInt64(idle, int64(s.Idle), attrs)
			o.ObserveInt64(waits, s.WaitCount, attrs)
		}
		if def := src.Default(); def != nil {
			observe(def)
		}
		for _, id := range src.Tenants() {
			if route, ok := src.Lookup(id); ok && route.DataSource != nil {
				observe(route.DataSource)
			}
		}
		return nil
	}, open, inUse, idle, waits)
}
