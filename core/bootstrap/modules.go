package bootstrap

import (
	"context"

	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/inventory"
)

// SeedActor is recorded as the actor of audit entries written by seeding.
const SeedActor = "system:seed"

// Seeder loads reference data into the store after it is opened.
type Seeder interface {
	Seed(ctx context.Context, store *inventory.Store) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context, store *inventory.Store) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context, store *inventory.Store) error {
	return f(ctx, store)
}

// Modules groups optional bootstrapping hooks.
type Modules struct {
	Seeders []Seeder
}

// CatalogSeeder creates the configured items that do not exist yet.
func CatalogSeeder(items []coreconfig.SeedItem) Seeder {
	return SeederFunc(func(ctx context.Context, store *inventory.Store) error {
		if len(items) == 0 {
			return nil
		}
		specs := make([]inventory.ItemSpec, 0, len(items))
		for _, it := range items {
			specs = append(specs, inventory.ItemSpec{ID: it.ID, Name: it.Name, Quantity: it.Quantity})
		}
		_, err := store.Seed(ctx, specs, SeedActor)
		return err
	})
}
