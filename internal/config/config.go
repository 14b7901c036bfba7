// Package config
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	TLS      TLSConfig      `yaml:"tls"`
	CORS     CORSConfig     `yaml:"cors"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Platform PlatformConfig `yaml:"platform"`
	Probe    ProbeConfig    `yaml:"probe"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeoutMS  int      `yaml:"read_timeout_ms"`
	WriteTimeoutMS int      `yaml:"write_timeout_ms"`
	TrustedProxies []string `yaml:"trusted_proxies" validate:"dive,ip|cidr"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file" validate:"required_if=Enabled true"`
	KeyFile  string `yaml:"key_file" validate:"required_if=Enabled true"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAgeSeconds  int      `yaml:"max_age_seconds"`
}

// PoolConfig defines connection pool settings
type PoolConfig struct {
	MaxConns                 int `yaml:"max_conns"`
	MinConns                 int `yaml:"min_conns"`
	MaxConnLifetimeMinutes   int `yaml:"max_conn_lifetime_minutes"`
	MaxConnIdleTimeMinutes   int `yaml:"max_conn_idle_time_minutes"`
	HealthCheckPeriodSeconds int `yaml:"health_check_period_seconds"`
}

type DatabaseConfig struct {
	Host          string     `yaml:"host" validate:"required"`
	Port          int        `yaml:"port"`
	User          string     `yaml:"user"`
	Password      string     `yaml:"password"`
	DBName        string     `yaml:"dbname" validate:"required"`
	SSLMode       string     `yaml:"ssl_mode"`
	RunMigrations bool       `yaml:"run_migrations"`
	Pool          PoolConfig `yaml:"pool"`
}

type AuthConfig struct {
	AdminUsername     string `yaml:"admin_username"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	JWTSecret         string `yaml:"jwt_secret"`
	JWTExpiryHours    int    `yaml:"jwt_expiry_hours"`
}

// PlatformConfig describes the site being reported on
type PlatformConfig struct {
	Root          string   `yaml:"root" validate:"required"`
	BaseURL       string   `yaml:"base_url" validate:"required,url"`
	Version       string   `yaml:"version"`
	Environment   string   `yaml:"environment"`
	ExtensionDirs []string `yaml:"extension_dirs"`

	// FeaturesBundle limits configuration packages to one bundle
	FeaturesBundle string `yaml:"features_bundle"`
}

type ProbeConfig struct {
	SelfTestPath      string   `yaml:"self_test_path"`
	SelfTestVariables []string `yaml:"self_test_variables"`
	SelfTestTimeoutMS int      `yaml:"self_test_timeout_ms"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var validate = validator.New()

// Load reads configuration from file and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	// The admin API is optional, but half a configuration is a mistake
	if c.Auth.AdminUsername != "" || c.Auth.JWTSecret != "" {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("jwt_secret must be at least 32 characters")
		}
		if !strings.HasPrefix(c.Auth.AdminPasswordHash, "$2") {
			return fmt.Errorf("admin_password_hash must be a bcrypt hash")
		}
	}

	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}

	return nil
}

// ApplyDefaults fills zero values with working defaults
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	c.Database.Pool.ApplyDefaults()
	if c.Auth.JWTExpiryHours == 0 {
		c.Auth.JWTExpiryHours = 24
	}
	if len(c.Platform.ExtensionDirs) == 0 {
		c.Platform.ExtensionDirs = []string{"core/modules", "modules", "profiles", "themes"}
	}
	if c.Platform.Environment == "" {
		c.Platform.Environment = "no_ema"
	}
	if c.Probe.SelfTestPath == "" {
		c.Probe.SelfTestPath = "/xmlrpc"
	}
	if len(c.Probe.SelfTestVariables) == 0 {
		c.Probe.SelfTestVariables = []string{"cron_last"}
	}
	if c.Probe.SelfTestTimeoutMS == 0 {
		c.Probe.SelfTestTimeoutMS = 10000
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// applyEnvOverrides checks for environment variables with SITEPROBE_ prefix
func applyEnvOverrides(cfg *Config) {
	// Database overrides
	if v := os.Getenv("SITEPROBE_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SITEPROBE_DATABASE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.Port)
	}
	if v := os.Getenv("SITEPROBE_DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SITEPROBE_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SITEPROBE_DATABASE_DBNAME"); v != "" {
		cfg.Database.DBName = v
	}

	// Auth overrides
	if v := os.Getenv("SITEPROBE_AUTH_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Auth.AdminPasswordHash = v
	}
	if v := os.Getenv("SITEPROBE_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	// Platform overrides
	if v := os.Getenv("SITEPROBE_PLATFORM_ROOT"); v != "" {
		cfg.Platform.Root = v
	}
	if v := os.Getenv("SITEPROBE_PLATFORM_BASE_URL"); v != "" {
		cfg.Platform.BaseURL = v
	}

	if v := os.Getenv("SITEPROBE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadTimeout returns the read timeout as a duration
func (s *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration
func (s *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// ConnString returns the PostgreSQL connection string in postgres:// URL format
func (d *DatabaseConfig) ConnString() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}

	query := url.Values{}
	if d.SSLMode != "" {
		query.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// ApplyDefaults sets default values for pool configuration
func (p *PoolConfig) ApplyDefaults() {
	// The probe is polled rarely; a small pool is plenty
	if p.MaxConns == 0 {
		p.MaxConns = 5
	}
	if p.MinConns == 0 {
		p.MinConns = 1
	}
	if p.MaxConnLifetimeMinutes == 0 {
		p.MaxConnLifetimeMinutes = 60
	}
	if p.MaxConnIdleTimeMinutes == 0 {
		p.MaxConnIdleTimeMinutes = 10
	}
	if p.HealthCheckPeriodSeconds == 0 {
		p.HealthCheckPeriodSeconds = 60
	}
}

// MaxConnLifetime returns the max connection lifetime as a duration
func (p *PoolConfig) MaxConnLifetime() time.Duration {
	return time.Duration(p.MaxConnLifetimeMinutes) * time.Minute
}

// MaxConnIdleTime returns the max connection idle time as a duration
func (p *PoolConfig) MaxConnIdleTime() time.Duration {
	return time.Duration(p.MaxConnIdleTimeMinutes) * time.Minute
}

// HealthCheckPeriod returns the health check period as a duration
func (p *PoolConfig) HealthCheckPeriod() time.Duration {
	return time.Duration(p.HealthCheckPeriodSeconds) * time.Second
}

// JWTExpiry returns JWT expiry as duration
func (a *AuthConfig) JWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// Enabled reports whether the admin API is configured
func (a *AuthConfig) Enabled() bool {
	return a.AdminUsername != "" && a.JWTSecret != ""
}

// SelfTestTimeout returns the self-test request timeout as a duration
func (p *ProbeConfig) SelfTestTimeout() time.Duration {
	return time.Duration(p.SelfTestTimeoutMS) * time.Millisecond
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}

// DumpExampleConfig writes an example configuration to the provided writer
func DumpExampleConfig(w io.Writer) error {
	example := &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeoutMS:  30000,
			WriteTimeoutMS: 30000,
			TrustedProxies: []string{"127.0.0.1"},
		},
		TLS: TLSConfig{
			Enabled:  false,
			CertFile: "./certs/server.crt",
			KeyFile:  "./certs/server.key",
		},
		CORS: CORSConfig{
			Enabled:        false,
			AllowedOrigins: []string{"https://monitor.example.com"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAgeSeconds:  3600,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			User:          "site",
			Password:      "changeme",
			DBName:        "site",
			SSLMode:       "disable",
			RunMigrations: false,
			Pool: PoolConfig{
				MaxConns:                 5,
				MinConns:                 1,
				MaxConnLifetimeMinutes:   60,
				MaxConnIdleTimeMinutes:   10,
				HealthCheckPeriodSeconds: 60,
			},
		},
		Auth: AuthConfig{
			AdminUsername:     "admin",
			AdminPasswordHash: "$2a$10$replace.with.a.real.bcrypt.hash.................",
			JWTSecret:         "your-secret-key-minimum-32-chars-required",
			JWTExpiryHours:    24,
		},
		Platform: PlatformConfig{
			Root:          "/var/www/site",
			BaseURL:       "https://www.example.com",
			Version:       "10.2.4",
			Environment:   "no_ema",
			ExtensionDirs: []string{"core/modules", "modules", "profiles", "themes"},
		},
		Probe: ProbeConfig{
			SelfTestPath:      "/xmlrpc",
			SelfTestVariables: []string{"cron_last"},
			SelfTestTimeoutMS: 10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	// Create a YAML node for custom formatting with comments
	var node yaml.Node
	if err := node.Encode(example); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := `# =============================================================================
# siteprobe example configuration
# =============================================================================
# Copy this file to config.yaml and modify it according to your needs.
#
# Environment variable overrides follow the pattern: SITEPROBE_<SECTION>_<KEY>
# Example: SITEPROBE_DATABASE_HOST, SITEPROBE_AUTH_JWT_SECRET
#
# The probe key and the IP allow-list are not part of this file. They live in
# the site's probe.settings configuration object; see "siteprobe settings".
# =============================================================================

`
	if _, err := fmt.Fprint(w, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	return nil
}

// InitLogger initializes the global logger based on configuration
func InitLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	// Set log level
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Set format
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
