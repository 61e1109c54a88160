package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/logger"
	"github.com/ampairs/backend/internal/infrastructure/migration"
	"github.com/ampairs/backend/internal/infrastructure/persistence"
	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

const defaultMigrationsPath = "migrations"

func main() {
	var (
		migrationsPath string
		logLevel       string
		scopeName      string
		tenantID       string
		allTenants     bool
	)

	flag.StringVar(&migrationsPath, "path", "", "Path to migrations root (default: ./migrations)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&scopeName, "scope", "", "Migration set: master or tenant (default: master, or tenant with -tenant/-all-tenants)")
	flag.StringVar(&tenantID, "tenant", "", "Run tenant migrations against one tenant datasource")
	flag.BoolVar(&allTenants, "all-tenants", false, "Run tenant migrations against every tenant datasource")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	scope := migration.ScopeMaster
	if tenantID != "" || allTenants {
		scope = migration.ScopeTenant
	}
	if scopeName != "" {
		if scope, err = migration.ParseScope(scopeName); err != nil {
			log.Fatal("Invalid scope", zap.Error(err))
		}
	}
	if scope == migration.ScopeMaster && (tenantID != "" || allTenants) {
		log.Fatal("-tenant and -all-tenants only apply to the tenant scope")
	}

	migrationsPath = findMigrationsRoot(migrationsPath)
	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("scope", string(scope)),
		zap.String("migrations_path", migrationsPath),
	)

	// create and list work on files only
	switch command {
	case "create":
		if len(args) < 2 {
			log.Fatal("Migration name required. Usage: migrate -scope <scope> create <name> [description]")
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(migrationsPath, scope, args[1], description)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created successfully",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return

	case "list":
		migrations, err := migration.ListMigrations(migrationsPath, scope)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		if len(migrations) == 0 {
			log.Info("No migrations found")
			return
		}
		log.Info("Available migrations", zap.Int("count", len(migrations)))
		for _, m := range migrations {
			fmt.Println("  -", m)
		}
		return
	}

	run, err := commandFor(command, args[1:], log)
	if err != nil {
		log.Error(err.Error())
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	var targets []migration.Database
	if scope == migration.ScopeMaster {
		targets = []migration.Database{migration.MasterDatabase(cfg.Database)}
	} else {
		only := tenancy.ID("")
		if !allTenants {
			if tenantID == "" {
				log.Fatal("Tenant scope needs -tenant <id> or -all-tenants")
			}
			if only, err = tenancy.ParseID(tenantID); err != nil {
				log.Fatal("Invalid tenant", zap.Error(err))
			}
		}
		specs, err := tenantSpecs(context.Background(), cfg, log)
		if err != nil {
			log.Fatal("Failed to load tenant datasources", zap.Error(err))
		}
		if targets, err = migration.TenantDatabases(specs, only); err != nil {
			log.Fatal("Failed to plan tenant migrations", zap.Error(err))
		}
	}

	// One failing datasource does not stop the others; the exit code reports it.
	var failed []error
	for _, target := range targets {
		if err := migrate(target, migrationsPath, run, log); err != nil {
			log.Error("Migration failed",
				zap.String("tenant_id", target.Tenant.String()),
				zap.Error(err),
			)
			failed = append(failed, fmt.Errorf("%s: %w", target.Tenant, err))
		}
	}
	if err := errors.Join(failed...); err != nil {
		log.Fatal("Migrations finished with failures", zap.Int("failed", len(failed)), zap.Int("targets", len(targets)))
	}
	log.Info("Migrations finished", zap.Int("targets", len(targets)))
}

func migrate(target migration.Database, root string, run func(*migration.Migrator) error, log *zap.Logger) error {
	db, err := sql.Open("postgres", target.Config.DSN())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	m, err := migration.New(db, root, target.Target, log)
	if err != nil {
		return err
	}
	defer m.Close()

	return run(m)
}

// tenantSpecs returns every datasource tenant migrations run on: the default
// datasource, the statically configured ones and, when enabled, the active
// workspaces of the registry.
func tenantSpecs(ctx context.Context, cfg *config.Config, log *zap.Logger) ([]tenant.Spec, error) {
	specs := []tenant.Spec{{Tenant: tenancy.DefaultID, Config: cfg.Database}}
	for _, ds := range cfg.Tenancy.DataSources {
		spec, err := tenant.SpecFromConfig(cfg.Database, ds)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if !cfg.Tenancy.RegistryEnabled {
		return specs, nil
	}

	master, err := tenant.NewPostgresOpener(nil).Open(ctx, tenant.Spec{Tenant: tenancy.DefaultID, Config: cfg.Database})
	if err != nil {
		return nil, err
	}
	defer master.Close()

	registered, err := persistence.NewGormWorkspaceRepository(master.Gorm(), cfg.Database).ActiveDataSources(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("Loaded workspace registry", zap.Int("workspaces", len(registered)))
	return append(specs, registered...), nil
}

func commandFor(command string, args []string, log *zap.Logger) (func(*migration.Migrator) error, error) {
	switch command {
	case "up":
		return (*migration.Migrator).Up, nil

	case "down":
		return (*migration.Migrator).Down, nil

	case "step":
		if len(args) < 1 {
			return nil, errors.New("step count required. Usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid step count %q", args[0])
		}
		return func(m *migration.Migrator) error { return m.Steps(n) }, nil

	case "goto":
		if len(args) < 1 {
			return nil, errors.New("version required. Usage: migrate goto <version>")
		}
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid version number %q", args[0])
		}
		return func(m *migration.Migrator) error { return m.GoTo(uint(version)) }, nil

	case "version":
		return func(m *migration.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if version == 0 {
				log.Info("No migrations applied")
				return nil
			}
			log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
			return nil
		}, nil

	case "force":
		if len(args) < 1 {
			return nil, errors.New("version required. Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid version number %q", args[0])
		}
		log.Warn("Forcing migration version - use with caution!")
		return func(m *migration.Migrator) error { return m.Force(version) }, nil
	}
	return nil, fmt.Errorf("unknown command %q", command)
}

func findMigrationsRoot(path string) string {
	if path == "" {
		path = defaultMigrationsPath
		if _, err := os.Stat(path); err != nil {
			if execPath, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(execPath), "..", "..", defaultMigrationsPath)
				if _, err := os.Stat(candidate); err == nil {
					path = candidate
				}
			}
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func printUsage() {
	fmt.Println(`Ampairs Database Migration Tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version (use with caution)
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Path to migrations root (default: ./migrations)
  -scope string         master or tenant
  -tenant string        Migrate one tenant datasource (implies -scope tenant)
  -all-tenants          Migrate the default, configured and registered tenant datasources
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  AMPAIRS_DATABASE_HOST, AMPAIRS_DATABASE_PORT, AMPAIRS_DATABASE_USER,
  AMPAIRS_DATABASE_PASSWORD, AMPAIRS_DATABASE_DBNAME

Examples:
  # Apply the master schema
  migrate up

  # Apply tenant tables on every workspace
  migrate -all-tenants up

  # Roll back the last tenant migration of one workspace
  migrate -tenant acme-corp step -1

  # Create a tenant migration
  migrate -scope tenant create add_invoices "Invoices per workspace"`)
}
