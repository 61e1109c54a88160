package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	_ "github.com/ampairs/backend/docs"
	"github.com/ampairs/backend/internal/infrastructure/auth"
	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/logger"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
	"github.com/ampairs/backend/internal/interfaces/http/handler"
	"github.com/ampairs/backend/internal/interfaces/http/middleware"
)

// DataSources is the route table as seen by the HTTP layer
type DataSources interface {
	handler.RouteTable
	handler.DataSourceResolver
	Knows(id tenancy.ID) bool
}

// Deps carries everything the HTTP engine is built from. Optional
// collaborators may be nil: no JWTService disables principal extraction,
// no Meter disables request metrics.
type Deps struct {
	Config         *config.Config
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	Meter          metric.Meter

	JWTService     *auth.JWTService
	TokenBlacklist auth.TokenBlacklist

	// Membership rejects authenticated non-members of the tenants
	// MembershipScope selects; a nil scope means every non-default tenant
	Membership      middleware.MembershipChecker
	MembershipScope func(id tenancy.ID) bool

	DataSources DataSources
	Resolver    *tenancy.IdentifierResolver
	Customers   handler.CustomerService
	Activity    handler.ActivityReader

	// ReloadTenants backs POST /system/tenants/reload; nil disables it
	ReloadTenants handler.ReloadFunc
}

// NewEngine builds the gin engine with the global middleware chain and all routes.
//
// Order matters: the request id and logger come first so every later failure
// is attributable; JWT runs before tenant resolution so the principal can
// supply a tenant; span enrichment and metrics run last so they see the
// resolved tenant.
func NewEngine(d Deps) (*gin.Engine, error) {
	if d.Config == nil || d.DataSources == nil || d.Resolver == nil {
		return nil, fmt.Errorf("router: config, datasources and resolver are required")
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := d.Config

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig()))

	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			Enabled:        true,
			TracerProvider: d.TracerProvider,
			SkipPaths:      []string{"/health"},
		}))
	}

	if d.JWTService != nil {
		engine.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			JWTService:     d.JWTService,
			TokenBlacklist: d.TokenBlacklist,
			Optional:       true,
			SkipPaths:      []string{"/health"},
			Logger:         log,
		}))
	}

	tenantCfg := middleware.NewTenantConfig(cfg.Tenancy)
	tenantCfg.Membership = d.Membership
	tenantCfg.MembershipScope = d.MembershipScope
	tenantCfg.Logger = log
	engine.Use(middleware.TenantMiddlewareWithConfig(tenantCfg))

	if cfg.Telemetry.Enabled {
		engine.Use(middleware.SpanAttributes())
	}
	if d.Meter != nil {
		metrics, err := middleware.HTTPMetrics(d.Meter, middleware.WithKnownTenants(d.DataSources.Knows))
		if err != nil {
			return nil, fmt.Errorf("http metrics: %w", err)
		}
		engine.Use(metrics)
	}

	systemHandler := handler.NewSystemHandler(d.DataSources).WithReload(d.ReloadTenants)
	engine.GET("/health", systemHandler.Health)

	var docsAuth gin.HandlerFunc
	if d.JWTService != nil {
		docsAuth = middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			JWTService:     d.JWTService,
			TokenBlacklist: d.TokenBlacklist,
			Logger:         log,
		})
	}
	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(cfg.Swagger, docsAuth),
		ginSwagger.WrapHandler(swaggerFiles.Handler))

	opts := []RouterOption{WithAPIVersion("v1")}
	if cfg.Tenancy.Required {
		opts = append(opts, WithTenantGuard(middleware.RequireTenant()))
	}
	r := NewRouter(engine, opts...)

	system := NewGroup("system", "/system")
	system.GET("/info", systemHandler.GetSystemInfo)
	system.POST("/tenants/reload", systemHandler.ReloadTenants)

	tenantHandler := handler.NewTenantHandler(d.Resolver, d.DataSources)
	tenantRoutes := NewGroup("tenant", "/tenant")
	tenantRoutes.GET("/current", tenantHandler.Current)

	r.Mount(system, tenantRoutes)

	if d.Customers != nil {
		customerHandler := handler.NewCustomerHandler(d.Customers)
		customers := NewGroup("customers", "/customers").TenantScoped()
		customers.GET("", customerHandler.List)
		customers.POST("", customerHandler.Create)
		customers.GET("/:id", customerHandler.GetByID)
		r.Mount(customers)
	}
	if d.Activity != nil {
		activityRoutes := NewGroup("activity", "/activity").TenantScoped()
		activityRoutes.GET("", handler.NewActivityHandler(d.Activity).Recent)
		r.Mount(activityRoutes)
	}

	r.Setup()
	return engine, nil
}

// ServerTimeouts returns the HTTP server timeouts with defaults for unset values
func ServerTimeouts(cfg config.HTTPConfig) (read, write, idle time.Duration) {
	read, write, idle = cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout
	if read == 0 {
		read = 30 * time.Second
	}
	if write == 0 {
		write = 30 * time.Second
	}
	if idle == 0 {
		idle = 120 * time.Second
	}
	return read, write, idle
}
