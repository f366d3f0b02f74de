package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// DatabaseConfig holds persistence settings. Driver selects the SQL dialect.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// AuthConfig controls admin elevation. AdminPIN may be a bcrypt hash.
type AuthConfig struct {
	AdminPIN                 string `yaml:"admin_pin" envconfig:"ADMIN_PIN"`
	ElevationDurationSeconds int    `yaml:"elevation_duration_seconds" envconfig:"ELEVATION_DURATION_SECONDS"`
	MaxPinAttempts           int    `yaml:"max_pin_attempts" envconfig:"MAX_PIN_ATTEMPTS"`
	LockoutDurationSeconds   int    `yaml:"lockout_duration_seconds" envconfig:"LOCKOUT_DURATION_SECONDS"`
}

// SessionConfig controls conversation expiry.
type SessionConfig struct {
	TimeoutSeconds       int `yaml:"timeout_seconds" envconfig:"SESSION_TIMEOUT_SECONDS"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" envconfig:"SESSION_SWEEP_INTERVAL_SECONDS"`
}

// SeedItem describes a catalog entry created on startup when absent.
type SeedItem struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Quantity int64  `yaml:"quantity"`
}

// InventoryConfig holds catalog related settings.
type InventoryConfig struct {
	// nil means unset; 0 is a valid threshold.
	LowStockThreshold *int64     `yaml:"low_stock_threshold" envconfig:"LOW_STOCK_THRESHOLD"`
	AuditPageSize     int        `yaml:"audit_page_size" envconfig:"AUDIT_PAGE_SIZE"`
	Seed              []SeedItem `yaml:"seed"`
}

// HTTPConfig configures the read-only ops API. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// DriverPostgres selects lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite selects modernc.org/sqlite.
	DriverSQLite = "sqlite"
	// DriverMySQL selects go-sql-driver/mysql.
	DriverMySQL = "mysql"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// Defaults applied by Normalize when a value is left at zero.
const (
	DefaultElevationDurationSeconds = 900
	DefaultMaxPinAttempts           = 3
	DefaultLockoutDurationSeconds   = 300
	DefaultSessionTimeoutSeconds    = 600
	DefaultSweepIntervalSeconds     = 60
	DefaultLowStockThreshold        = 5
	DefaultAuditPageSize            = 10
	DefaultSQLitePath               = "data/stockbot.db"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	Inventory InventoryConfig `yaml:"inventory"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// LoadOption adjusts the validation done by Load and Normalize.
type LoadOption func(*loadOptions)

type loadOptions struct {
	offline bool
}

// Offline relaxes the checks for settings only the running bot needs
// (Telegram token and admin PIN). Maintenance commands use it.
func Offline() LoadOption {
	return func(o *loadOptions) { o.offline = true }
}

// Load reads configuration from an optional .env file next to the config,
// the YAML file and environment variables, in that order of precedence.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var cfg Config

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg, opts...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config, opts ...LoadOption) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := normalizeTelegram(cfg, o.offline); err != nil {
		return err
	}
	if err := normalizeDatabase(&cfg.Database); err != nil {
		return err
	}
	if err := normalizeAuth(&cfg.Auth, o.offline); err != nil {
		return err
	}

	if cfg.Session.TimeoutSeconds < 0 || cfg.Session.SweepIntervalSeconds < 0 {
		return fmt.Errorf("session timeouts must be >= 0")
	}
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = DefaultSessionTimeoutSeconds
	}
	if cfg.Session.SweepIntervalSeconds == 0 {
		cfg.Session.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}

	if cfg.Inventory.LowStockThreshold == nil {
		v := int64(DefaultLowStockThreshold)
		cfg.Inventory.LowStockThreshold = &v
	}
	if *cfg.Inventory.LowStockThreshold < 0 {
		return fmt.Errorf("inventory.low_stock_threshold must be >= 0")
	}
	if cfg.Inventory.AuditPageSize <= 0 {
		cfg.Inventory.AuditPageSize = DefaultAuditPageSize
	}
	for i, item := range cfg.Inventory.Seed {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("inventory.seed[%d].id is required", i)
		}
		if item.Quantity < 0 {
			return fmt.Errorf("inventory.seed[%d].quantity must be >= 0", i)
		}
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeTelegram(cfg *Config, offline bool) error {
	if cfg.Telegram.Token == "" && !offline {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeDatabase(db *DatabaseConfig) error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	if driver == "sqlite3" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverSQLite:
		if strings.TrimSpace(db.Path) == "" {
			db.Path = DefaultSQLitePath
		}
		db.MaxConnections = 1
	case DriverPostgres, DriverMySQL:
		if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
			return fmt.Errorf("database.host and database.name are required for driver %q", driver)
		}
		if db.Port == "" {
			if driver == DriverPostgres {
				db.Port = "5432"
			} else {
				db.Port = "3306"
			}
		}
		if driver == DriverPostgres && db.SSLMode == "" {
			db.SSLMode = "disable"
		}
		if db.MaxConnections <= 0 {
			db.MaxConnections = 10
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: sqlite, postgres, mysql", db.Driver)
	}
	db.Driver = driver
	return nil
}

func normalizeAuth(a *AuthConfig, offline bool) error {
	a.AdminPIN = strings.TrimSpace(a.AdminPIN)
	if a.AdminPIN == "" && !offline {
		return fmt.Errorf("auth.admin_pin is required")
	}
	if a.ElevationDurationSeconds < 0 || a.MaxPinAttempts < 0 || a.LockoutDurationSeconds < 0 {
		return fmt.Errorf("auth durations and attempts must be >= 0")
	}
	if a.ElevationDurationSeconds == 0 {
		a.ElevationDurationSeconds = DefaultElevationDurationSeconds
	}
	if a.MaxPinAttempts == 0 {
		a.MaxPinAttempts = DefaultMaxPinAttempts
	}
	if a.LockoutDurationSeconds == 0 {
		a.LockoutDurationSeconds = DefaultLockoutDurationSeconds
	}
	return nil
}
