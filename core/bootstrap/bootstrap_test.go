package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/stockbot/core/config"
)

func sqliteConfig(t *testing.T) *coreconfig.Config {
	t.Helper()
	cfg := &coreconfig.Config{
		Database: coreconfig.DatabaseConfig{Path: filepath.Join(t.TempDir(), "stock.db")},
		Inventory: coreconfig.InventoryConfig{Seed: []coreconfig.SeedItem{
			{ID: "widget", Name: "Widget", Quantity: 10},
			{ID: "bolt", Quantity: 4},
		}},
	}
	require.NoError(t, coreconfig.Normalize(cfg, coreconfig.Offline()))
	return cfg
}

func noLogger(*coreconfig.Config) error { return nil }

func TestRunSeedsOnceAndReloads(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)
	opts := Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Modules:    Modules{Seeders: []Seeder{CatalogSeeder(cfg.Inventory.Seed)}},
	}

	res, err := Run(ctx, opts)
	require.NoError(t, err)
	_, err = res.Store.Adjust(ctx, "widget", -4, "alice")
	require.NoError(t, err)
	require.NoError(t, res.Close())

	res, err = Run(ctx, opts)
	require.NoError(t, err)
	defer res.Close()

	it, err := res.Store.Get("widget")
	require.NoError(t, err)
	require.Equal(t, int64(6), it.Quantity)

	trail, err := res.Store.AuditTrail(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	require.Equal(t, SeedActor, trail[2].ActorID)
}

func TestRunStopsOnMigrationFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), Options{
		Config:     sqliteConfig(t),
		LoggerInit: noLogger,
		Migrate:    func(context.Context, *sqlx.DB, string) error { return boom },
	})
	require.ErrorIs(t, err, boom)
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)
}
