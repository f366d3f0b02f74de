package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations applies all embedded up migrations for the connected dialect.
// The caller keeps ownership of db.
func RunMigrations(ctx context.Context, db *sqlx.DB, driver string) error {
	dir := path.Join("migrations", driver)
	files := listMigrationFiles(dir)
	preview, truncated := logger.SummarizeStrings(files, 6)
	args := []any{
		slog.String("event", "db.migrate.resolve"),
		slog.String("driver", driver),
		slog.Int("files_total", len(files)),
	}
	if preview != "" {
		args = append(args, slog.String("files_preview", preview))
	}
	if truncated {
		args = append(args, slog.Bool("files_truncated", true))
	}
	logger.MIG.Debug("migrations resolved", args...)

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("database: migrations for %q: %w", driver, err)
	}

	dbDrv, release, err := migrationTarget(ctx, db, driver)
	if err != nil {
		_ = src.Close()
		logger.MIG.Error("init failed",
			slog.String("event", "db.migrate"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer release(src)

	m, err := migrate.NewWithInstance("iofs", src, driver, dbDrv)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	fromVer, _, _ := m.Version()

	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)

	switch {
	case upErr == nil:
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.MIG.Info("migrations summary",
			slog.String("event", "db.migrate"),
			slog.String("status", "skip"),
			slog.Uint64("from_ver", uint64(fromVer)),
			slog.Uint64("to_ver", uint64(fromVer)),
			slog.Int("files", 0),
			slog.Duration("duration", took),
		)
		return nil
	default:
		logger.MIG.Error("migration failed",
			slog.String("event", "db.migrate"),
			slog.String("status", "fail"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()
	applied := selectApplied(files, uint64(fromVer), uint64(toVer))
	if len(applied) > 0 {
		previewApplied, truncatedApplied := logger.SummarizeStrings(applied, 6)
		logger.MIG.Debug("applied files",
			slog.String("event", "db.migrate.apply"),
			slog.Int("files_total", len(applied)),
			slog.String("files_preview", previewApplied),
			slog.Bool("files_truncated", truncatedApplied),
		)
	}

	logger.MIG.Info("migrations summary",
		slog.String("event", "db.migrate"),
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

// migrationTarget wraps db for golang-migrate without handing it ownership of the pool.
// Server dialects get a dedicated connection; release returns it and closes the source.
func migrationTarget(ctx context.Context, db *sqlx.DB, driver string) (migratedb.Driver, func(source.Driver), error) {
	closeSource := func(src source.Driver) { _ = src.Close() }

	switch driver {
	case coreconfig.DriverSQLite:
		drv, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
		if err != nil {
			return nil, nil, err
		}
		return drv, closeSource, nil
	case coreconfig.DriverPostgres, coreconfig.DriverMySQL:
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		var drv migratedb.Driver
		if driver == coreconfig.DriverPostgres {
			drv, err = migratepg.WithConnection(ctx, conn, &migratepg.Config{})
		} else {
			drv, err = migratemysql.WithConnection(ctx, conn, &migratemysql.Config{})
		}
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		// the driver was built WithConnection, so Close releases only conn
		return drv, func(src source.Driver) {
			closeSource(src)
			_ = drv.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
}

func listMigrationFiles(dir string) []string {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	if to <= from {
		return nil
	}
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
