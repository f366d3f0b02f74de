// Package inventorytest provides SQLite-backed stores and deterministic clocks for tests.
package inventorytest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/database"
	"github.com/m3rciful/stockbot/core/inventory"
)

// Epoch is the fixed start time of every Clock.
var Epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// ErrInjected is returned by FailingRepository while failing.
var ErrInjected = errors.New("injected storage failure")

// Clock is a manually advanced time source safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to Epoch.
func NewClock() *Clock {
	return &Clock{now: Epoch}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SequentialIDs returns a generator yielding prefix-1, prefix-2, ...
func SequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// OpenDB returns a migrated SQLite database in a temp directory, closed on cleanup.
func OpenDB(t testing.TB) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	cfg := coreconfig.DatabaseConfig{
		Driver: coreconfig.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "stock.db"),
	}
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.RunMigrations(ctx, db, cfg.Driver); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// Fixture bundles a store with its database and fake clock.
type Fixture struct {
	Store *inventory.Store
	DB    *sqlx.DB
	Repo  *FailingRepository
	Clock *Clock
}

// NewFixture opens a store over a fresh database, seeded with items.
func NewFixture(t testing.TB, items ...inventory.ItemSpec) *Fixture {
	t.Helper()
	db := OpenDB(t)
	clock := NewClock()
	repo := &FailingRepository{Repository: inventory.NewSQLRepository(db)}
	store, err := inventory.Open(context.Background(), repo,
		inventory.WithClock(clock.Now),
		inventory.WithIDGenerator(SequentialIDs("entry")),
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if len(items) > 0 {
		if _, err := store.Seed(context.Background(), items, "seed"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return &Fixture{Store: store, DB: db, Repo: repo, Clock: clock}
}

// AuditCount returns the number of persisted audit rows.
func (f *Fixture) AuditCount(t testing.TB) int {
	t.Helper()
	var n int
	if err := f.DB.Get(&n, `SELECT COUNT(*) FROM audit_log`); err != nil {
		t.Fatalf("count audit: %v", err)
	}
	return n
}

// FailingRepository wraps a Repository and fails every call while Fail is set.
type FailingRepository struct {
	inventory.Repository
	Fail atomic.Bool
}

// Commit forwards to the wrapped repository unless failing.
func (r *FailingRepository) Commit(ctx context.Context, m inventory.Mutation) error {
	if r.Fail.Load() {
		return ErrInjected
	}
	return r.Repository.Commit(ctx, m)
}

// AuditTrail forwards to the wrapped repository unless failing.
func (r *FailingRepository) AuditTrail(ctx context.Context, limit int) ([]inventory.AuditEntry, error) {
	if r.Fail.Load() {
		return nil, ErrInjected
	}
	return r.Repository.AuditTrail(ctx, limit)
}
