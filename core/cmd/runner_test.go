package cmd

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stockbot/core/bootstrap"
	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/dispatch"
)

type fakeTransport struct {
	events   chan dispatch.Event
	mu       sync.Mutex
	replies  []dispatch.Reply
	got      chan struct{}
	commands []dispatch.Command
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan dispatch.Event, 4), got: make(chan struct{}, 4)}
}

func (f *fakeTransport) Events() <-chan dispatch.Event { return f.events }

func (f *fakeTransport) Run(ctx context.Context) error {
	f.events <- dispatch.Event{ConversationID: "42", ActorID: "7", Text: "/list", Timestamp: time.Now()}
	<-ctx.Done()
	close(f.events)
	return nil
}

func (f *fakeTransport) SendReply(_ context.Context, r dispatch.Reply) error {
	f.mu.Lock()
	f.replies = append(f.replies, r)
	f.mu.Unlock()
	f.got <- struct{}{}
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func testConfig(t *testing.T) *coreconfig.Config {
	t.Helper()
	cfg := &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{Token: "test"},
		Database: coreconfig.DatabaseConfig{Path: filepath.Join(t.TempDir(), "stock.db")},
		Auth:     coreconfig.AuthConfig{AdminPIN: "1234"},
		Inventory: coreconfig.InventoryConfig{Seed: []coreconfig.SeedItem{
			{ID: "widget", Name: "Widget", Quantity: 3},
		}},
	}
	require.NoError(t, coreconfig.Normalize(cfg))
	return cfg
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("STOCKBOT_TEST_CONFIG", "")

	p, err := ResolveConfigPath("explicit.yaml", "STOCKBOT_TEST_CONFIG", "default.yaml")
	require.NoError(t, err)
	require.Equal(t, "explicit.yaml", p)

	p, err = ResolveConfigPath("", "STOCKBOT_TEST_CONFIG", "default.yaml")
	require.NoError(t, err)
	require.Equal(t, "default.yaml", p)

	t.Setenv("STOCKBOT_TEST_CONFIG", "env.yaml")
	p, err = ResolveConfigPath("", "STOCKBOT_TEST_CONFIG", "default.yaml")
	require.NoError(t, err)
	require.Equal(t, "env.yaml", p)

	t.Setenv("STOCKBOT_TEST_CONFIG", "")
	_, err = ResolveConfigPath("", "STOCKBOT_TEST_CONFIG", "")
	require.Error(t, err)
}

func TestServeRoutesEventsUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	tr := newFakeTransport()
	loggerStopped := false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, Options{
			ConfigPath: "unused.yaml",
			LoadConfig: func(string, ...coreconfig.LoadOption) (*coreconfig.Config, error) { return cfg, nil },
			Bootstrap: func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error) {
				opts.LoggerInit = func(*coreconfig.Config) error { return nil }
				return bootstrap.Run(ctx, opts)
			},
			NewTransport: func(_ *coreconfig.Config, cmds []dispatch.Command) (Transport, error) {
				tr.commands = cmds
				return tr, nil
			},
			ShutdownLogger: func() error { loggerStopped = true; return nil },
		})
	}()

	select {
	case <-tr.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.replies, 1)
	require.Equal(t, "42", tr.replies[0].ConversationID)
	require.Contains(t, tr.replies[0].Text, "widget")
	require.NotEmpty(t, tr.commands)
	require.True(t, tr.closed)
	require.True(t, loggerStopped)
}

func TestServeFailsOnBadConfig(t *testing.T) {
	err := Serve(context.Background(), Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.ErrorContains(t, err, "failed to load config")
}
