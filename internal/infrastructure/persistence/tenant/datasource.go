// Package tenant routes ORM sessions and raw connections to the datasource of
// the tenant active in the request context.
//
// Every tenant owns exactly one DataSource, a connection pool opened against a
// dedicated database or against a schema of a shared server. The schema is
// pinned when the pool is created (search_path startup parameter), so a pooled
// connection never needs re-pointing and can never leak one tenant's scoping
// into another tenant's request.
//
// Usage:
//
//	router := tenant.NewRouter(defaultDS)
//	sessions := tenant.NewSessionFactory(router, tenancy.NewIdentifierResolver(""))
//	db, err := sessions.Session(ctx) // bound to the tenant active in ctx
//	db.Find(&customers)
package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// Spec describes the datasource a tenant should be routed to.
type Spec struct {
	Tenant tenancy.ID
	Config config.DatabaseConfig
}

// fingerprint identifies the connection settings of a spec; two specs with the
// same fingerprint can share one pool across reloads.
func (s Spec) fingerprint() string {
	return fmt.Sprintf("%s|%d|%d|%d|%d", s.Config.DSN(),
		s.Config.MaxOpenConns, s.Config.MaxIdleConns, s.Config.ConnMaxLifetime, s.Config.ConnMaxIdleTime)
}

// SpecFromConfig converts a statically configured datasource, inheriting unset
// fields from base. An entry naming neither a database nor a schema lives in
// the tenant's own schema of the shared database, the same place a registered
// workspace would.
func SpecFromConfig(base config.DatabaseConfig, ds config.DataSourceConfig) (Spec, error) {
	id, err := tenancy.ParseID(ds.Tenant)
	if err != nil {
		return Spec{}, err
	}
	if ds.Schema == "" && ds.DBName == "" {
		ds.Schema = id.SchemaName()
	}
	return Spec{Tenant: id, Config: base.ForDataSource(ds)}, nil
}

// DataSource is one tenant's connection pool.
type DataSource struct {
	tenant      tenancy.ID
	schema      string
	db          *gorm.DB
	sqlDB       *sql.DB
	fingerprint string
}

// NewDataSource wraps an already opened gorm DB as the datasource of id.
func NewDataSource(id tenancy.ID, schema string, db *gorm.DB) (*DataSource, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return &DataSource{tenant: id, schema: schema, db: db, sqlDB: sqlDB}, nil
}

// Tenant returns the tenant this datasource serves.
func (d *DataSource) Tenant() tenancy.ID { return d.tenant }

// Schema returns the pinned schema, or "" when the server default applies.
func (d *DataSource) Schema() string { return d.schema }

// Gorm returns the pool's gorm handle. Prefer SessionFactory, which binds the
// session to the tenant and enables the isolation guard.
func (d *DataSource) Gorm() *gorm.DB { return d.db }

// SQL returns the underlying pool.
func (d *DataSource) SQL() *sql.DB { return d.sqlDB }

// Ping checks if the database connection is alive
func (d *DataSource) Ping(ctx context.Context) error {
	return d.sqlDB.PingContext(ctx)
}

// Close closes every connection of the pool
func (d *DataSource) Close() error {
	return d.sqlDB.Close()
}

// Stats returns connection pool statistics
func (d *DataSource) Stats() ConnectionStats {
	s := d.sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Opener opens the pool described by a spec.
type Opener interface {
	Open(ctx context.Context, spec Spec) (*DataSource, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, spec Spec) (*DataSource, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, spec Spec) (*DataSource, error) {
	return f(ctx, spec)
}

// GormOpener opens datasources through gorm and applies pool settings from
// the spec. Setup hooks run on every opened DB before it is pinged, which is
// where the isolation guard and tracing plugins are registered.
type GormOpener struct {
	Dialector func(cfg config.DatabaseConfig) gorm.Dialector
	Logger    gormlogger.Interface
	Setup     []func(db *gorm.DB) error
}

// NewPostgresOpener returns an opener for PostgreSQL datasources.
func NewPostgresOpener(logger gormlogger.Interface, setup ...func(db *gorm.DB) error) *GormOpener {
	return &GormOpener{
		Dialector: func(cfg config.DatabaseConfig) gorm.Dialector { return postgres.Open(cfg.DSN()) },
		Logger:    logger,
		Setup:     setup,
	}
}

// dataSourceLogger is a gorm logger that can label statements with the
// datasource they ran on.
type dataSourceLogger interface {
	ForDataSource(name string) gormlogger.Interface
}

// Open implements Opener.
func (o *GormOpener) Open(ctx context.Context, spec Spec) (*DataSource, error) {
	logger := o.Logger
	if logger == nil {
		logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	if bound, ok := logger.(dataSourceLogger); ok {
		logger = bound.ForDataSource(spec.Tenant.String())
	}

	db, err := gorm.Open(o.Dialector(spec.Config), &gorm.Config{
		Logger:                 logger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to datasource %q: %w", spec.Tenant, err)
	}

	ds, err := NewDataSource(spec.Tenant, spec.Config.Schema, db)
	if err != nil {
		return nil, err
	}
	ds.fingerprint = spec.fingerprint()

	cfg := spec.Config
	if cfg.MaxOpenConns > 0 {
		ds.sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	ds.sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	ds.sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	ds.sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	for _, setup := range o.Setup {
		if err := setup(db); err != nil {
			_ = ds.Close()
			return nil, fmt.Errorf("failed to set up datasource %q: %w", spec.Tenant, err)
		}
	}

	if err := ds.Ping(ctx); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("failed to ping datasource %q: %w", spec.Tenant, err)
	}

	return ds, nil
}
