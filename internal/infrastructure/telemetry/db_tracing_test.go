package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

type tracedRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "traced.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func setupRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

func TestNewDBTracingPlugin_Defaults(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, nil)
	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
	assert.Equal(t, "postgresql", p.config.DBSystem)
	assert.False(t, p.config.LogFullSQL)
}

func TestDBTracingPlugin_RegisterDisabled(t *testing.T) {
	db := setupTestDB(t)
	tp, recorder := setupRecorder(t)

	p := NewDBTracingPlugin(DBTracingConfig{TracerProvider: tp}, nil)
	require.NoError(t, p.Register(db))

	require.NoError(t, db.Create(&tracedRow{Name: "untraced"}).Error)
	assert.Empty(t, recorder.Ended())
}

func TestDBTracingPlugin_RegisterEmitsStatementSpans(t *testing.T) {
	db := setupTestDB(t)
	tp, recorder := setupRecorder(t)

	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, DBSystem: "sqlite", TracerProvider: tp}, nil)
	require.NoError(t, p.Register(db))

	require.NoError(t, db.WithContext(context.Background()).Create(&tracedRow{Name: "traced"}).Error)
	assert.NotEmpty(t, recorder.Ended())
}

func TestDBTracingPlugin_Enrich(t *testing.T) {
	db := setupTestDB(t)
	tp, recorder := setupRecorder(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond}, nil)

	ds, err := tenant.NewDataSource("acme-corp", "", db)
	require.NoError(t, err)
	router := tenant.NewRouter(nil)
	_, err = router.Add(tenant.Route{Tenant: "acme-corp", DataSource: ds})
	require.NoError(t, err)
	sessions := tenant.NewSessionFactory(router, tenancy.NewIdentifierResolver(""))

	ctx, span := tp.Tracer("test").Start(tenancy.ContextWithTenant(context.Background(), "acme-corp"), "create")
	session, err := sessions.Session(ctx)
	require.NoError(t, err)

	rows := []tracedRow{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	result := session.Create(&rows)
	require.NoError(t, result.Error)

	stmt := result.Statement.DB
	stmt.Statement.Context = context.WithValue(stmt.Statement.Context, queryStartTimeKey, time.Now().Add(-time.Second))
	p.enrich(stmt)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	attrs := attrMap(ended[0].Attributes())
	assert.Equal(t, "acme-corp", attrs["db.datasource"].AsString())
	assert.Equal(t, "traced_rows", attrs["db.sql.table"].AsString())
	assert.Equal(t, int64(3), attrs["db.rows_affected"].AsInt64())
	assert.True(t, attrs["db.slow_query"].AsBool())
}

func TestDBTracingPlugin_EnrichMarksErrors(t *testing.T) {
	db := setupTestDB(t)
	tp, recorder := setupRecorder(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, nil)

	t.Run("record not found is not an error", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "find")
		var row tracedRow
		result := db.WithContext(ctx).First(&row, 999)
		require.ErrorIs(t, result.Error, gorm.ErrRecordNotFound)
		p.enrich(result.Statement.DB)
		span.End()

		ended := recorder.Ended()
		assert.Equal(t, codes.Unset, ended[len(ended)-1].Status().Code)
	})

	t.Run("driver error", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "broken")
		tx := db.WithContext(ctx).Session(&gorm.Session{})
		tx.Statement.Context = ctx
		tx.Error = errors.New("no such table: ghosts")
		p.enrich(tx)
		span.End()

		ended := recorder.Ended()
		last := ended[len(ended)-1]
		assert.Equal(t, codes.Error, last.Status().Code)
		assert.Equal(t, "no such table: ghosts", last.Status().Description)
	})

	t.Run("non recording span is ignored", func(t *testing.T) {
		tx := db.WithContext(context.Background()).Session(&gorm.Session{})
		assert.NotPanics(t, func() { p.enrich(tx) })
	})
}
