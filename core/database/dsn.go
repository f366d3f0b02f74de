package database

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-sql-driver/mysql"

	coreconfig "github.com/m3rciful/stockbot/core/config"
)

// DriverName returns the database/sql driver name registered for the configured dialect.
func DriverName(cfg coreconfig.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case coreconfig.DriverPostgres:
		return "postgres", nil
	case coreconfig.DriverSQLite:
		return "sqlite", nil
	case coreconfig.DriverMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
}

// DSN builds the connection string for the configured dialect.
func DSN(cfg coreconfig.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case coreconfig.DriverPostgres:
		return fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
		), nil
	case coreconfig.DriverSQLite:
		return sqliteDSN(cfg.Path), nil
	case coreconfig.DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
		mc.DBName = cfg.Name
		mc.MultiStatements = true
		return mc.FormatDSN(), nil
	default:
		return "", fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
}

// sqliteDSN enables WAL, foreign keys and a busy timeout on every connection.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

// ensureSQLiteDir creates the parent directory of a file database.
func ensureSQLiteDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("database: create %s: %w", dir, err)
	}
	return nil
}

// describe returns attrs-friendly target info without secrets.
func describe(cfg coreconfig.DatabaseConfig) (host, port, name string) {
	if cfg.Driver == coreconfig.DriverSQLite {
		return "", "", cfg.Path
	}
	return cfg.Host, cfg.Port, cfg.Name
}
