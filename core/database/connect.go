package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/logger"
)

const connectTimeout = 5 * time.Second

// Connect opens the database connection, configures the pool, and verifies connectivity.
func Connect(ctx context.Context, cfg coreconfig.DatabaseConfig) (*sqlx.DB, error) {
	driverName, err := DriverName(cfg)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == coreconfig.DriverSQLite {
		if err := ensureSQLiteDir(cfg.Path); err != nil {
			return nil, err
		}
	}
	host, port, name := describe(cfg)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	took := logger.Took(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("status", "fail"),
			slog.String("driver", cfg.Driver),
			slog.String("host", host),
			slog.String("port", port),
			slog.String("db", name),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	maxConns := cfg.MaxConnections
	if cfg.Driver == coreconfig.DriverSQLite || maxConns <= 0 {
		// one writer connection; WAL readers share it
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if cfg.Driver == coreconfig.DriverSQLite {
		db.SetConnMaxLifetime(0)
	}
	logger.DB.Debug("db pool configured",
		slog.String("event", "db.pool"),
		slog.Int("pool_open", maxConns),
	)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("status", "ok"),
		slog.String("driver", cfg.Driver),
		slog.String("host", host),
		slog.String("port", port),
		slog.String("db", name),
		slog.Int("pool_open", maxConns),
		slog.Duration("duration", took),
	)
	return db, nil
}

// WaitReady polls a server-based database until it answers a ping or timeout elapses.
// File databases are always ready.
func WaitReady(ctx context.Context, cfg coreconfig.DatabaseConfig, timeout time.Duration) error {
	if cfg.Driver == coreconfig.DriverSQLite {
		return nil
	}
	driverName, err := DriverName(cfg)
	if err != nil {
		return err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempt := 0
	for {
		attempt++
		lastErr := ping(ctx, driverName, dsn)
		if lastErr == nil {
			return nil
		}
		logger.DB.Debug("db not ready",
			slog.String("event", "db.wait"),
			slog.String("status", "retry"),
			slog.String("driver", cfg.Driver),
			slog.Int("attempt", attempt),
			slog.String("err", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		case <-time.After(2 * time.Second):
		}
	}
}

func ping(ctx context.Context, driverName, dsn string) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
