package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stockbot/core/bootstrap"
	"github.com/m3rciful/stockbot/core/buildinfo"
	coreconfig "github.com/m3rciful/stockbot/core/config"
)

// writeConfig creates a sqlite config seeded with two items and one adjustment.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "stock.db")
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("database:\n  driver: sqlite\n  path: %q\n", dbPath)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := coreconfig.Load(path, coreconfig.Offline())
	require.NoError(t, err)
	ctx := context.Background()
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     cfg,
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Modules: bootstrap.Modules{Seeders: []bootstrap.Seeder{bootstrap.CatalogSeeder([]coreconfig.SeedItem{
			{ID: "widget", Name: "Widget", Quantity: 10},
			{ID: "bolt", Quantity: 4},
		})}},
	})
	require.NoError(t, err)
	_, err = res.Store.Adjust(ctx, "widget", -3, "alice")
	require.NoError(t, err)
	require.NoError(t, res.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, buildinfo.String()+"\n", out)
}

func TestExportCatalogToStdout(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "export")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name,quantity,updated_at", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "bolt,bolt,4,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "widget,Widget,7,"), lines[2])
}

func TestExportAuditToFile(t *testing.T) {
	path := writeConfig(t)
	outPath := filepath.Join(t.TempDir(), "audit.csv")

	out, err := execute(t, "--config", path, "export", "audit", "--out", outPath, "--limit", "2")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "entry_id,timestamp,actor_id,item_id,action,delta,resulting_quantity", lines[0])
	assert.Contains(t, lines[1], ",alice,widget,adjust,-3,7")
}

func TestExportRejectsUnknownTarget(t *testing.T) {
	path := writeConfig(t)

	_, err := execute(t, "--config", path, "export", "orders")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAuditText(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "audit", "-n", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	assert.Contains(t, lines[1], "alice")
	assert.Contains(t, lines[1], "-3")
}

func TestAuditJSON(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "audit", "--format", "json")
	require.NoError(t, err)

	var records []auditRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 3)
	assert.Equal(t, "adjust", records[0].Action)
	assert.Equal(t, bootstrap.SeedActor, records[2].ActorID)
}

func TestAuditRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "--config", "unused.yaml", "audit", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "--config", "unused.yaml", "audit", "-n", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrations applied (sqlite)\n", out)
}

func TestMissingConfigIsCommandError(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "audit")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
