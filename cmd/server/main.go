package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	activityapp "github.com/ampairs/backend/internal/application/activity"
	customerapp "github.com/ampairs/backend/internal/application/customer"
	"github.com/ampairs/backend/internal/infrastructure/auth"
	"github.com/ampairs/backend/internal/infrastructure/cache"
	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/event"
	"github.com/ampairs/backend/internal/infrastructure/logger"
	"github.com/ampairs/backend/internal/infrastructure/persistence"
	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/scheduler"
	"github.com/ampairs/backend/internal/infrastructure/telemetry"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
	"github.com/ampairs/backend/internal/interfaces/http/handler"
	"github.com/ampairs/backend/internal/interfaces/http/middleware"
	"github.com/ampairs/backend/internal/interfaces/http/router"
)

//	@title			Ampairs Backend API
//	@version		1.0
//	@description	Multi-tenant business API. Every request is routed to the datasource of the workspace it names.

//	@contact.name	API Support
//	@contact.url	https://github.com/ampairs/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Telemetry first so every later component can attach to it
	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = lp.Bridge(log)

	log.Info("Starting Ampairs backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Bool("telemetry", tp.IsEnabled()),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(200*time.Millisecond),
		logger.WithIgnoreRecordNotFoundError(true),
	)

	defaultTenant, err := tenancy.ParseID(cfg.Tenancy.DefaultTenant)
	if err != nil {
		log.Fatal("Invalid default tenant", zap.String("tenant", cfg.Tenancy.DefaultTenant), zap.Error(err))
	}
	resolver := tenancy.NewIdentifierResolver(defaultTenant)
	guard := tenant.NewIsolationGuard(resolver)
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:        cfg.Telemetry.DBTraceEnabled,
		TracerProvider: tp.Provider(),
	}, log)
	opener := tenant.NewPostgresOpener(gormLog, guard.Register, dbTracing.Register)

	// The default datasource doubles as the master database holding the
	// workspace registry.
	def, err := opener.Open(ctx, tenant.Spec{Tenant: tenancy.DefaultID, Config: cfg.Database})
	if err != nil {
		log.Fatal("Failed to open default datasource", zap.Error(err))
	}
	routes := tenant.NewRouter(def,
		tenant.WithMeter(mp.Meter()),
		tenant.WithDefaultTenant(defaultTenant),
	)
	log.Info("Default datasource connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)

	workspaces := persistence.NewGormWorkspaceRepository(def.Gorm(), cfg.Database)

	static := make([]tenant.Spec, 0, len(cfg.Tenancy.DataSources))
	for _, ds := range cfg.Tenancy.DataSources {
		spec, err := tenant.SpecFromConfig(cfg.Database, ds)
		if err != nil {
			log.Fatal("Invalid tenant datasource", zap.String("tenant", ds.Tenant), zap.Error(err))
		}
		static = append(static, spec)
	}
	provOpts := []tenant.ProvisionerOption{
		tenant.WithStaticSpecs(static...),
		tenant.WithLogger(log),
		tenant.WithRetireGrace(cfg.Tenancy.RetireGrace),
	}
	if cfg.Tenancy.RegistryEnabled {
		provOpts = append(provOpts, tenant.WithRegistry(workspaces))
	}
	provisioner := tenant.NewProvisioner(routes, opener, provOpts...)
	if err := provisioner.Reload(ctx); err != nil {
		// unavailable tenants are routed as such; the rest keep serving
		log.Warn("Some tenant datasources failed to open", zap.Error(err))
	}
	log.Info("Tenant datasources loaded", zap.Int("tenants", routes.Len()))

	reloadTenants := handler.ReloadFunc(provisioner.Reload)
	var refresher *scheduler.RegistryRefresher
	if cfg.Tenancy.RegistryEnabled && cfg.Tenancy.RefreshInterval > 0 {
		refreshCfg := scheduler.DefaultRefresherConfig()
		refreshCfg.Interval = cfg.Tenancy.RefreshInterval
		refresher, err = scheduler.NewRegistryRefresher(refreshCfg, provisioner, log)
		if err != nil {
			log.Fatal("Failed to create registry refresher", zap.Error(err))
		}
		if err := refresher.Start(ctx); err != nil {
			log.Fatal("Failed to start registry refresher", zap.Error(err))
		}
		reloadTenants = refresher.RefreshNow
	}

	var blacklist auth.TokenBlacklist
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		blacklist = auth.NewRedisTokenBlacklist(rdb)

		invalidator := cache.NewRegistryInvalidator(rdb, provisioner,
			cache.WithRegistryChannel(cfg.Tenancy.RegistryChannel),
			cache.WithInvalidatorLogger(log),
		)
		reloadTenants = invalidator.RequestReload
		go func() {
			if err := invalidator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Registry invalidation stopped", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	if _, err := telemetry.RegisterPoolMetrics(mp.Meter(), routes); err != nil {
		log.Warn("Failed to register pool metrics", zap.Error(err))
	}

	// Event bus and the tenant-scoped services built on it
	bus := event.NewInMemoryEventBus(log)
	sessions := tenant.NewSessionFactory(routes, resolver)
	recorder := activityapp.NewRecorder(persistence.NewGormActivityRepository(sessions))
	bus.Subscribe(recorder, recorder.EventTypes()...)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	customers := customerapp.NewService(persistence.NewGormCustomerRepository(sessions), bus)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Membership is recorded only for registered workspaces; static tenants
	// from configuration have no members to check against.
	var membership middleware.MembershipChecker
	if cfg.Tenancy.RegistryEnabled {
		membership = workspaces
	}

	engine, err := router.NewEngine(router.Deps{
		Config:          cfg,
		Logger:          log,
		TracerProvider:  tp.Provider(),
		Meter:           mp.Meter(),
		JWTService:      auth.NewJWTService(cfg.JWT),
		TokenBlacklist:  blacklist,
		Membership:      membership,
		MembershipScope: provisioner.Registered,
		DataSources:     routes,
		Resolver:        resolver,
		Customers:       customers,
		Activity:        recorder,
		ReloadTenants:   reloadTenants,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	readTimeout, writeTimeout, idleTimeout := router.ServerTimeouts(cfg.HTTP)
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if refresher != nil {
		if err := refresher.Stop(shutdownCtx); err != nil {
			log.Warn("Registry refresher did not stop", zap.Error(err))
		}
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not drain", zap.Error(err))
	}
	provisioner.Close()
	if err := routes.Close(); err != nil {
		log.Warn("Failed to close datasources", zap.Error(err))
	}
	for _, shutdown := range []func(context.Context) error{tp.Shutdown, mp.Shutdown, lp.Shutdown} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}
