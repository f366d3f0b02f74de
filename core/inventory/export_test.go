package inventory_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stockbot/core/inventory"
	"github.com/m3rciful/stockbot/core/inventory/inventorytest"
)

func exportFixture(t *testing.T) *inventorytest.Fixture {
	t.Helper()
	f := inventorytest.NewFixture(t,
		inventory.ItemSpec{ID: "widget", Name: "Widget", Quantity: 10},
		inventory.ItemSpec{ID: "bolt", Name: "Bolt, M4", Quantity: 3},
	)
	f.Clock.Advance(time.Minute)
	_, err := f.Store.Adjust(ctx, "widget", -3, "alice")
	require.NoError(t, err)
	return f
}

func TestExportCatalogGolden(t *testing.T) {
	f := exportFixture(t)
	var buf bytes.Buffer
	require.NoError(t, f.Store.ExportCatalog(&buf))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "catalog_csv", buf.Bytes())
}

func TestExportAuditGolden(t *testing.T) {
	f := exportFixture(t)
	var buf bytes.Buffer
	require.NoError(t, f.Store.ExportAudit(ctx, &buf, 0))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "audit_csv", buf.Bytes())
}

func TestExportAuditStorageFailure(t *testing.T) {
	f := exportFixture(t)
	f.Repo.Fail.Store(true)
	var buf bytes.Buffer
	require.ErrorIs(t, f.Store.ExportAudit(ctx, &buf, 10), inventory.ErrStorage)
	require.Zero(t, buf.Len())
}
