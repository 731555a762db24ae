package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendDatabase = "database"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Portal     PortalConfig     `yaml:"portal"`
	Poller     PollerConfig     `yaml:"poller"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Source is the file the configuration was read from, empty when only defaults apply.
	Source string `yaml:"-"`
}

// ServerConfig holds the dashboard server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
	PlotDays        int           `yaml:"plot_days"`
}

// PortalConfig describes the vendor identity provider and data endpoint.
type PortalConfig struct {
	AuthURL        string            `yaml:"auth_url"`
	TokenURL       string            `yaml:"token_url"`
	DataURL        string            `yaml:"data_url"`
	DashboardURL   string            `yaml:"dashboard_url"`
	Headers        map[string]string `yaml:"headers"`
	Timezone       string            `yaml:"timezone"`
	HTTPProxy      string            `yaml:"http_proxy"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
}

// PollerConfig holds the scheduling loop configuration.
type PollerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	IntervalSeconds    int           `yaml:"interval_seconds"`
	Interval           time.Duration `yaml:"-"`
	TokenMaxAgeMinutes int           `yaml:"token_max_age_minutes"`
	TokenMaxAge        time.Duration `yaml:"-"`
}

// AlertsConfig holds the alert thresholds and cooldown windows.
type AlertsConfig struct {
	Notify                  bool          `yaml:"notify"`
	LowContentThreshold     int           `yaml:"low_content_threshold"`
	LowContentCooldownHours int           `yaml:"low_content_cooldown_hours"`
	LowContentCooldown      time.Duration `yaml:"-"`
	StalenessThresholdHours int           `yaml:"staleness_threshold_hours"`
	StalenessThreshold      time.Duration `yaml:"-"`
	StalenessCooldownHours  int           `yaml:"staleness_cooldown_hours"`
	StalenessCooldown       time.Duration `yaml:"-"`
	SMTPTimeoutSeconds      int           `yaml:"smtp_timeout_seconds"`
	SMTPTimeout             time.Duration `yaml:"-"`
	Signature               string        `yaml:"signature"`
}

// StorageConfig selects where readings and alert ledgers live.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	Backend string `yaml:"backend"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the push worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Poller.Enabled = true
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration from the given path. A missing file yields the defaults
// and leaves Source empty.
func Load(path string) (*Config, error) {
	cfg := &Config{Poller: PollerConfig{Enabled: true}}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		cfg.Source = path
		decoder := yaml.NewDecoder(f)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize recomputes derived fields after flags have overridden file values.
func (c *Config) Finalize() error {
	c.applyDefaults()
	return c.Validate()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile:
	case BackendDatabase:
		if c.Database.DSN == "" {
			return errors.New("storage.backend=database requires database.dsn")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if _, err := time.LoadLocation(c.Portal.Timezone); err != nil {
		return fmt.Errorf("invalid portal.timezone %q: %w", c.Portal.Timezone, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8000
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 300
	}
	c.Server.CacheTTL = time.Duration(c.Server.CacheTTLSeconds) * time.Second
	if c.Server.PlotDays <= 0 {
		c.Server.PlotDays = 10
	}

	if c.Portal.AuthURL == "" {
		c.Portal.AuthURL = DefaultAuthURL
	}
	if c.Portal.TokenURL == "" {
		c.Portal.TokenURL = DefaultTokenURL
	}
	if c.Portal.DataURL == "" {
		c.Portal.DataURL = DefaultDataURL
	}
	if c.Portal.DashboardURL == "" {
		c.Portal.DashboardURL = DefaultDashboardURL
	}
	if c.Portal.Headers == nil {
		c.Portal.Headers = DefaultHeaders()
	}
	if c.Portal.Timezone == "" {
		c.Portal.Timezone = "Local"
	}
	if c.Portal.TimeoutSeconds <= 0 {
		c.Portal.TimeoutSeconds = 30
	}
	c.Portal.Timeout = time.Duration(c.Portal.TimeoutSeconds) * time.Second

	if c.Poller.IntervalSeconds <= 0 {
		c.Poller.IntervalSeconds = 3600
	}
	c.Poller.Interval = time.Duration(c.Poller.IntervalSeconds) * time.Second
	if c.Poller.TokenMaxAgeMinutes <= 0 {
		c.Poller.TokenMaxAgeMinutes = 60
	}
	c.Poller.TokenMaxAge = time.Duration(c.Poller.TokenMaxAgeMinutes) * time.Minute

	if c.Alerts.LowContentThreshold <= 0 {
		c.Alerts.LowContentThreshold = 10
	}
	if c.Alerts.LowContentCooldownHours <= 0 {
		c.Alerts.LowContentCooldownHours = 72
	}
	c.Alerts.LowContentCooldown = time.Duration(c.Alerts.LowContentCooldownHours) * time.Hour
	if c.Alerts.StalenessThresholdHours <= 0 {
		c.Alerts.StalenessThresholdHours = 72
	}
	c.Alerts.StalenessThreshold = time.Duration(c.Alerts.StalenessThresholdHours) * time.Hour
	if c.Alerts.StalenessCooldownHours <= 0 {
		c.Alerts.StalenessCooldownHours = 24
	}
	c.Alerts.StalenessCooldown = time.Duration(c.Alerts.StalenessCooldownHours) * time.Hour
	if c.Alerts.SMTPTimeoutSeconds <= 0 {
		c.Alerts.SMTPTimeoutSeconds = 10
	}
	c.Alerts.SMTPTimeout = time.Duration(c.Alerts.SMTPTimeoutSeconds) * time.Second
	if c.Alerts.Signature == "" {
		c.Alerts.Signature = "CO2 Bank Monitor"
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data/"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 4
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.ConnMaxLifetimeMinutes <= 0 {
		c.Database.ConnMaxLifetimeMinutes = 30
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}
