package tenant

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// testCustomer lives in every tenant database with a row naming its owner.
type testCustomer struct {
	ID    uint `gorm:"primaryKey"`
	Owner string
	Name  string
}

// sqliteOpener opens one SQLite file per spec under dir. Each database is
// seeded with a customer row naming the tenant, so a query shows which
// datasource served it.
func sqliteOpener(t *testing.T, dir string, setup ...func(*gorm.DB) error) *GormOpener {
	t.Helper()
	seed := func(db *gorm.DB) error {
		if err := db.AutoMigrate(&testCustomer{}); err != nil {
			return err
		}
		var n int64
		if err := db.Model(&testCustomer{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		var owner string
		if d, ok := db.Dialector.(*sqlite.Dialector); ok {
			owner = ownerFromDSN(d.DSN)
		}
		return db.Create(&testCustomer{Owner: owner, Name: "first customer of " + owner}).Error
	}
	return &GormOpener{
		Dialector: func(cfg config.DatabaseConfig) gorm.Dialector {
			return sqlite.Open(filepath.Join(dir, cfg.DBName+".db"))
		},
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		Setup:  append([]func(*gorm.DB) error{seed}, setup...),
	}
}

func ownerFromDSN(dsn string) string {
	base := filepath.Base(dsn)
	return base[:len(base)-len(filepath.Ext(base))]
}

func sqliteSpec(id tenancy.ID) Spec {
	return Spec{Tenant: id, Config: config.DatabaseConfig{
		DBName:       id.String(),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}}
}

func openSQLite(t *testing.T, opener *GormOpener, id tenancy.ID) *DataSource {
	t.Helper()
	ds, err := opener.Open(context.Background(), sqliteSpec(id))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

// newMockDataSource wraps a sqlmock connection as the datasource of id.
func newMockDataSource(t *testing.T, id tenancy.ID) (*DataSource, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	ds, err := NewDataSource(id, "", gormDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return ds, mock, mockDB
}

func isClosed(ds *DataSource) bool {
	return ds.SQL().Ping() != nil
}
