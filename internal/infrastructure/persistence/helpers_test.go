package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ampairs/backend/internal/infrastructure/persistence/models"
	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// openSQLite opens a file database under t.TempDir with the given models migrated.
func openSQLite(t *testing.T, name string, migrate ...any) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), name+".db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(migrate...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// tenantSessions builds a session factory with one SQLite database per tenant.
func tenantSessions(t *testing.T, tenants ...tenancy.ID) *tenant.SessionFactory {
	t.Helper()
	def, err := tenant.NewDataSource(tenancy.DefaultID, "", openSQLite(t, "default", models.TenantModels()...))
	require.NoError(t, err)

	router := tenant.NewRouter(def)
	for _, id := range tenants {
		ds, err := tenant.NewDataSource(id, "", openSQLite(t, id.String(), models.TenantModels()...))
		require.NoError(t, err)
		_, err = router.Add(tenant.Route{Tenant: id, DataSource: ds})
		require.NoError(t, err)
	}
	return tenant.NewSessionFactory(router, tenancy.NewIdentifierResolver(""))
}

func tenantCtx(id tenancy.ID) context.Context {
	return tenancy.ContextWithTenant(context.Background(), id)
}
