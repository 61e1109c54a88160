package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Swagger   SwaggerConfig
	Telemetry TelemetryConfig
	Tenancy   TenancyConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings.
// It describes the shared (default tenant) datasource and is the template
// every tenant datasource inherits unset fields from.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	Schema          string // pinned through search_path; empty = server default
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// SwaggerConfig controls the /swagger API documentation endpoint
type SwaggerConfig struct {
	Enabled     bool
	RequireAuth bool     // a valid bearer token is needed to read the docs
	AllowedIPs  []string // IPs or CIDRs; empty allows everyone
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
	LogsEnabled       bool    // Bridge zap logs to the collector
	MetricsInterval   time.Duration
}

// TenancyConfig holds tenant resolution and routing settings
type TenancyConfig struct {
	HeaderName        string
	HeaderAliases     []string // accepted for older clients, e.g. X-Workspace-ID
	QueryParam        string
	PrincipalEnabled  bool
	SubdomainEnabled  bool
	BaseDomain        string
	SubdomainDenylist []string
	DefaultTenant     string
	Required          bool
	SkipPaths         []string
	RegistryEnabled   bool          // load workspace datasources from the shared database
	RegistryChannel   string        // Redis Pub/Sub channel for registry changes
	RefreshInterval   time.Duration // periodic registry reload; 0 disables
	RetireGrace       time.Duration // how long a replaced datasource keeps draining
	DataSources       []DataSourceConfig
}

// DataSourceConfig describes one statically configured tenant datasource.
// Zero fields are inherited from DatabaseConfig.
type DataSourceConfig struct {
	Tenant       string `mapstructure:"tenant" validate:"required,min=2,max=63"`
	Host         string `mapstructure:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port         int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	Schema       string `mapstructure:"schema" validate:"omitempty,max=63"`
	SSLMode      string `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"min=0"`
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with AMPAIRS_ prefix (e.g., AMPAIRS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return load(v)
}

// LoadFile loads configuration from an explicit TOML file plus environment variables.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("AMPAIRS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans cannot be told apart from "unset" after the fact
	v.SetDefault("tenancy.principal_enabled", true)
	v.SetDefault("tenancy.subdomain_enabled", false)
	v.SetDefault("tenancy.registry_enabled", false)
	v.SetDefault("tenancy.refresh_interval", 5*time.Minute)
	v.SetDefault("tenancy.retire_grace", 30*time.Second)
	v.SetDefault("swagger.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			Schema:          v.GetString("database.schema"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
			AllowedIPs:  v.GetStringSlice("swagger.allowed_ips"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
		Tenancy: TenancyConfig{
			HeaderName:        v.GetString("tenancy.header_name"),
			HeaderAliases:     v.GetStringSlice("tenancy.header_aliases"),
			QueryParam:        v.GetString("tenancy.query_param"),
			PrincipalEnabled:  v.GetBool("tenancy.principal_enabled"),
			SubdomainEnabled:  v.GetBool("tenancy.subdomain_enabled"),
			BaseDomain:        v.GetString("tenancy.base_domain"),
			SubdomainDenylist: v.GetStringSlice("tenancy.subdomain_denylist"),
			DefaultTenant:     v.GetString("tenancy.default_tenant"),
			Required:          v.GetBool("tenancy.required"),
			SkipPaths:         v.GetStringSlice("tenancy.skip_paths"),
			RegistryEnabled:   v.GetBool("tenancy.registry_enabled"),
			RegistryChannel:   v.GetString("tenancy.registry_channel"),
			RefreshInterval:   v.GetDuration("tenancy.refresh_interval"),
			RetireGrace:       v.GetDuration("tenancy.retire_grace"),
		},
	}

	if err := v.UnmarshalKey("tenancy.datasources", &cfg.Tenancy.DataSources); err != nil {
		return nil, fmt.Errorf("error decoding tenancy.datasources: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ampairs-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ampairs"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "ampairs"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ampairs-backend"
	}
	if cfg.Tenancy.HeaderName == "" {
		cfg.Tenancy.HeaderName = "X-Tenant-ID"
	}
	if len(cfg.Tenancy.HeaderAliases) == 0 {
		cfg.Tenancy.HeaderAliases = []string{"X-Workspace-ID"}
	}
	if cfg.Tenancy.QueryParam == "" {
		cfg.Tenancy.QueryParam = "tenantId"
	}
	if len(cfg.Tenancy.SubdomainDenylist) == 0 {
		cfg.Tenancy.SubdomainDenylist = DefaultSubdomainDenylist()
	}
	if cfg.Tenancy.DefaultTenant == "" {
		cfg.Tenancy.DefaultTenant = "default"
	}
	if len(cfg.Tenancy.SkipPaths) == 0 {
		cfg.Tenancy.SkipPaths = []string{"/health", "/healthz", "/ready", "/metrics"}
	}
	if cfg.Tenancy.RegistryChannel == "" {
		cfg.Tenancy.RegistryChannel = "ampairs:tenancy:registry"
	}
}

// DefaultSubdomainDenylist returns host labels that never name a tenant
func DefaultSubdomainDenylist() []string {
	return []string{"www", "api", "app", "admin", "auth", "mail", "static", "cdn", "assets"}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	seen := make(map[string]struct{}, len(c.Tenancy.DataSources))
	for i, ds := range c.Tenancy.DataSources {
		if err := validate.Struct(ds); err != nil {
			return fmt.Errorf("tenancy.datasources[%d]: %w", i, err)
		}
		key := strings.ToLower(ds.Tenant)
		if key == strings.ToLower(c.Tenancy.DefaultTenant) {
			return fmt.Errorf("tenancy.datasources[%d]: tenant %q is reserved for the shared database", i, ds.Tenant)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("tenancy.datasources[%d]: duplicate tenant %q", i, ds.Tenant)
		}
		seen[key] = struct{}{}
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Swagger.Enabled && !c.Swagger.RequireAuth && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger must be disabled, require authentication or restrict IPs in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// ForDataSource returns the database settings of a tenant datasource, taking
// every unset field from d.
func (d DatabaseConfig) ForDataSource(ds DataSourceConfig) DatabaseConfig {
	out := d
	if ds.Host != "" {
		out.Host = ds.Host
	}
	if ds.Port != 0 {
		out.Port = ds.Port
	}
	if ds.User != "" {
		out.User = ds.User
	}
	if ds.Password != "" {
		out.Password = ds.Password
	}
	if ds.DBName != "" {
		out.DBName = ds.DBName
	}
	out.Schema = ds.Schema
	if ds.SSLMode != "" {
		out.SSLMode = ds.SSLMode
	}
	if ds.MaxOpenConns != 0 {
		out.MaxOpenConns = ds.MaxOpenConns
	}
	if ds.MaxIdleConns != 0 {
		out.MaxIdleConns = ds.MaxIdleConns
	}
	if out.MaxIdleConns > out.MaxOpenConns {
		out.MaxIdleConns = out.MaxOpenConns
	}
	return out
}

// DSN returns the database connection string with properly escaped values.
// A non-empty Schema is sent as the search_path startup parameter so every
// connection of the pool is pinned to it from the moment it is opened.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	if d.Schema != "" {
		q.Set("search_path", d.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
