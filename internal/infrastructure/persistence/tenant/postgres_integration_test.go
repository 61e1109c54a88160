//go:build integration

package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ampairs_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host:         host,
		Port:         port.Int(),
		User:         "postgres",
		Password:     "admin123",
		DBName:       "ampairs_test",
		SSLMode:      "disable",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
}

// Schemas are pinned through search_path when the pool is opened, so two
// tenants sharing one server never see each other's tables.
func TestPostgres_SchemaPinnedPerDataSource(t *testing.T) {
	ctx := context.Background()
	base := startPostgres(t)

	resolver := tenancy.NewIdentifierResolver("")
	opener := NewPostgresOpener(nil, NewIsolationGuard(resolver).Register)

	def, err := opener.Open(ctx, Spec{Tenant: tenancy.DefaultID, Config: base})
	require.NoError(t, err)

	for _, id := range []tenancy.ID{"acme-corp", "globex"} {
		schema := id.SchemaName()
		require.NoError(t, def.Gorm().Exec(`CREATE SCHEMA IF NOT EXISTS "`+schema+`"`).Error)
		require.NoError(t, def.Gorm().Exec(`CREATE TABLE "`+schema+`".test_customers (id serial primary key, owner text, name text)`).Error)
	}

	router := NewRouter(def)
	t.Cleanup(func() { _ = router.Close() })

	p := NewProvisioner(router, opener, WithStaticSpecs(
		Spec{Tenant: "acme-corp", Config: base.ForDataSource(config.DataSourceConfig{Schema: tenancy.ID("acme-corp").SchemaName()})},
		Spec{Tenant: "globex", Config: base.ForDataSource(config.DataSourceConfig{Schema: tenancy.ID("globex").SchemaName()})},
	))
	require.NoError(t, p.Reload(ctx))

	conns := NewConnectionProvider(router, resolver)
	for _, id := range []tenancy.ID{"acme-corp", "globex"} {
		conn, err := conns.AcquireFor(ctx, id)
		require.NoError(t, err)
		var schema string
		require.NoError(t, conn.QueryRowContext(ctx, "SELECT current_schema()").Scan(&schema))
		require.NoError(t, conn.Release())
		assert.Equal(t, id.SchemaName(), schema)
	}

	sessions := NewSessionFactory(router, resolver)
	acmeCtx := tenancy.ContextWithTenant(ctx, "acme-corp")
	globexCtx := tenancy.ContextWithTenant(ctx, "globex")

	db, err := sessions.Session(acmeCtx)
	require.NoError(t, err)
	require.NoError(t, db.Create(&testCustomer{Owner: "acme-corp", Name: "Wile E."}).Error)

	db, err = sessions.Session(globexCtx)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&testCustomer{}).Count(&count).Error)
	assert.Zero(t, count, "globex does not see acme's rows")
}
