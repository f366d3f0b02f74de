// Package bootstrap brings up shared infrastructure: logging, the database,
// its schema, and the loaded inventory store.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	coredatabase "github.com/m3rciful/stockbot/core/database"
	"github.com/m3rciful/stockbot/core/feedback"
	"github.com/m3rciful/stockbot/core/inventory"
	"github.com/m3rciful/stockbot/core/logger"
)

// DefaultReadyTimeout bounds the wait for a database server at startup.
const DefaultReadyTimeout = 60 * time.Second

// Options control the bootstrap pipeline. Nil funcs take the package defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	WaitReady  func(ctx context.Context, cfg coreconfig.DatabaseConfig, timeout time.Duration) error
	Connect    func(ctx context.Context, cfg coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(ctx context.Context, db *sqlx.DB, driver string) error

	StoreOptions []inventory.Option
	Modules      Modules
}

// Result exposes what the pipeline initialized. Close releases it.
type Result struct {
	DB       *sqlx.DB
	Repo     *inventory.SQLRepository
	Store    *inventory.Store
	Feedback *feedback.Box
}

// Close closes the database pool.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, waits for and connects to the database, applies
// migrations, loads the store and runs the seeders.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	waitReady := opts.WaitReady
	if waitReady == nil {
		waitReady = coredatabase.WaitReady
	}
	if err := waitReady(ctx, cfg.Database, DefaultReadyTimeout); err != nil {
		return nil, fmt.Errorf("bootstrap: database not ready: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, db, cfg.Database.Driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	repo := inventory.NewSQLRepository(db)
	store, err := inventory.Open(ctx, repo, opts.StoreOptions...)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: load inventory: %w", err)
	}

	res := &Result{
		DB:       db,
		Repo:     repo,
		Store:    store,
		Feedback: feedback.New(feedback.NewSQLRepository(db)),
	}
	for _, s := range opts.Modules.Seeders {
		if err := s.Seed(ctx, store); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: seeding failed: %w", err)
		}
	}

	logger.DB.Info("bootstrap complete",
		slog.String("event", "bootstrap.done"),
		slog.String("status", "ok"),
		slog.String("driver", cfg.Database.Driver),
		slog.Int("count", len(store.List())),
		slog.Duration("duration", logger.Took(start)),
	)
	return res, nil
}
