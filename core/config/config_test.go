package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func minimalConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		Auth:     AuthConfig{AdminPIN: "4321"},
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg := minimalConfig()
	require.NoError(t, Normalize(cfg))

	require.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.Equal(t, DefaultSQLitePath, cfg.Database.Path)
	require.Equal(t, 1, cfg.Database.MaxConnections)
	require.Equal(t, DefaultElevationDurationSeconds, cfg.Auth.ElevationDurationSeconds)
	require.Equal(t, DefaultMaxPinAttempts, cfg.Auth.MaxPinAttempts)
	require.Equal(t, DefaultLockoutDurationSeconds, cfg.Auth.LockoutDurationSeconds)
	require.Equal(t, DefaultSessionTimeoutSeconds, cfg.Session.TimeoutSeconds)
	require.Equal(t, int64(DefaultLowStockThreshold), cfg.Inventory.Threshold())
	require.Equal(t, DefaultAuditPageSize, cfg.Inventory.AuditPageSize)
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"missing pin", func(c *Config) { c.Auth.AdminPIN = "  " }},
		{"bad run mode", func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" }},
		{"webhook without url", func(c *Config) { c.Telegram.RunMode = RunModeWebhook }},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"postgres without host", func(c *Config) { c.Database.Driver = DriverPostgres }},
		{"negative attempts", func(c *Config) { c.Auth.MaxPinAttempts = -1 }},
		{"negative timeout", func(c *Config) { c.Session.TimeoutSeconds = -5 }},
		{"negative threshold", func(c *Config) {
			v := int64(-1)
			c.Inventory.LowStockThreshold = &v
		}},
		{"seed without id", func(c *Config) { c.Inventory.Seed = []SeedItem{{Name: "x"}} }},
		{"seed negative qty", func(c *Config) { c.Inventory.Seed = []SeedItem{{ID: "x", Quantity: -1}} }},
		{"bad exclusion", func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"inline_query"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			tt.mutate(cfg)
			require.Error(t, Normalize(cfg))
		})
	}
}

func TestNormalizePostgresDefaults(t *testing.T) {
	cfg := minimalConfig()
	cfg.Database = DatabaseConfig{Driver: "Postgres", Host: "db", Name: "stock"}
	require.NoError(t, Normalize(cfg))
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, "5432", cfg.Database.Port)
	require.Equal(t, "disable", cfg.Database.SSLMode)
	require.Equal(t, 10, cfg.Database.MaxConnections)
}

func TestLoadOverlaysEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
telegram:
  token: "from-yaml"
auth:
  admin_pin: "1111"
  max_pin_attempts: 5
inventory:
  seed:
    - id: widget
      name: Widget
      quantity: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("ADMIN_PIN", "2222")
	t.Setenv("SESSION_TIMEOUT_SECONDS", "42")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-yaml", cfg.Telegram.Token)
	require.Equal(t, "2222", cfg.Auth.AdminPIN)
	require.Equal(t, 5, cfg.Auth.MaxPinAttempts)
	require.Equal(t, 42, cfg.Session.TimeoutSeconds)
	require.Len(t, cfg.Inventory.Seed, 1)
	require.Equal(t, int64(10), cfg.Inventory.Seed[0].Quantity)
}

func TestLoadKeepsZeroThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "telegram:\n  token: \"t\"\nauth:\n  admin_pin: \"1\"\ninventory:\n  low_stock_threshold: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Inventory.LowStockThreshold)
	require.Equal(t, int64(0), cfg.Inventory.Threshold())

	t.Setenv("LOW_STOCK_THRESHOLD", "7")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(7), cfg.Inventory.Threshold())
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  admin_pin: \"9\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BOT_TOKEN=from-dotenv\n"), 0o600))
	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("BOT_TOKEN")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Telegram.Token)
}

func TestNormalizeOfflineSkipsBotSecrets(t *testing.T) {
	cfg := &Config{}
	require.Error(t, Normalize(cfg))

	cfg = &Config{}
	require.NoError(t, Normalize(cfg, Offline()))
	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}
