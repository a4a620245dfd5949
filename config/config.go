package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Push   PushConfig   `yaml:"push"`
	Email  EmailConfig  `yaml:"email"`
	Sweep  SweepConfig  `yaml:"sweep"`
	Admin  AdminConfig  `yaml:"admin"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Driver string      `yaml:"driver"` // memory | redis | postgres | sqlite
	Redis  RedisConfig `yaml:"redis"`
	SQL    SQLConfig   `yaml:"sql"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SQLConfig holds the database connection configuration.
type SQLConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey      string `yaml:"vapid_public_key"`
	PrivateKey     string `yaml:"vapid_private_key"`
	Subject        string `yaml:"subject"`
	TTL            int    `yaml:"ttl"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	ClickURL       string `yaml:"click_url"`
}

// EmailConfig selects the email transport. An empty provider disables email.
type EmailConfig struct {
	Provider string     `yaml:"provider"` // "" | resend | smtp
	From     string     `yaml:"from"`
	FromName string     `yaml:"from_name"`
	APIKey   string     `yaml:"api_key"`
	SMTP     SMTPConfig `yaml:"smtp"`
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SweepConfig controls the reminder sweep and its schedule.
type SweepConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Workers int    `yaml:"workers"`
}

// AdminConfig holds the shared secret for administrative endpoints.
type AdminConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads the configuration from the given path, then applies environment
// overrides (optionally sourced from a .env file) and defaults. A missing file
// is not an error: everything can come from the environment.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Push.PublicKey, "VAPID_PUBLIC_KEY")
	override(&cfg.Push.PrivateKey, "VAPID_PRIVATE_KEY")
	override(&cfg.Push.Subject, "VAPID_SUBJECT")
	override(&cfg.Email.APIKey, "RESEND_API_KEY")
	override(&cfg.Email.SMTP.Password, "SMTP_PASSWORD")
	override(&cfg.Admin.Secret, "ADMIN_SECRET")
	override(&cfg.Store.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Store.SQL.DSN, "DATABASE_DSN")
	override(&cfg.Log.Level, "LOG_LEVEL")
	override(&cfg.Log.Environment, "ENVIRONMENT")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = "development"
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = "localhost:6379"
	}
	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 86400
	}
	if cfg.Push.ClickURL == "" {
		cfg.Push.ClickURL = "/"
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "LensTracker"
	}
	if cfg.Email.SMTP.Port <= 0 {
		cfg.Email.SMTP.Port = 587
	}
	if cfg.Sweep.Cron == "" {
		cfg.Sweep.Cron = "*/30 * * * *"
	}
	if cfg.Sweep.Workers <= 0 {
		cfg.Sweep.Workers = 4
	}
}

func (cfg *Config) validate() error {
	switch cfg.Store.Driver {
	case "memory", "redis":
	case "postgres", "sqlite":
		if cfg.Store.SQL.DSN == "" {
			return fmt.Errorf("store.sql.dsn is required for driver %q", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}

	switch strings.ToLower(cfg.Email.Provider) {
	case "":
	case "resend":
		if cfg.Email.APIKey == "" {
			return fmt.Errorf("email.api_key (or RESEND_API_KEY) is required for the resend provider")
		}
	case "smtp":
		if cfg.Email.SMTP.Host == "" {
			return fmt.Errorf("email.smtp.host is required for the smtp provider")
		}
	default:
		return fmt.Errorf("unknown email.provider %q", cfg.Email.Provider)
	}
	if cfg.Email.Provider != "" && cfg.Email.From == "" {
		return fmt.Errorf("email.from is required when email is enabled")
	}
	return nil
}
