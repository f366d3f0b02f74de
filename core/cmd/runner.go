// Package cmd wires the long-running bot process.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/m3rciful/stockbot/core/auth"
	"github.com/m3rciful/stockbot/core/bootstrap"
	coreconfig "github.com/m3rciful/stockbot/core/config"
	"github.com/m3rciful/stockbot/core/dispatch"
	"github.com/m3rciful/stockbot/core/httpapi"
	"github.com/m3rciful/stockbot/core/logger"
	"github.com/m3rciful/stockbot/core/session"
	coretelegram "github.com/m3rciful/stockbot/core/telegram"
)

// DefaultConfigEnvVar names the variable holding the config path.
const DefaultConfigEnvVar = "CONFIG_PATH"

// Transport is the chat side of the process.
type Transport interface {
	dispatch.Replier
	Events() <-chan dispatch.Event
	Run(ctx context.Context) error
	Close()
}

// Options describe how to load configuration, bootstrap and serve.
type Options struct {
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig     func(path string, opts ...coreconfig.LoadOption) (*coreconfig.Config, error)
	Bootstrap      func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	NewTransport   func(cfg *coreconfig.Config, commands []dispatch.Command) (Transport, error)
	ShutdownLogger func() error
}

// ResolveConfigPath picks the explicit path, then the env var, then the default.
func ResolveConfigPath(explicit, envVar, fallback string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if envVar == "" {
		envVar = DefaultConfigEnvVar
	}
	if p := os.Getenv(envVar); p != "" {
		return p, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via --config, %s or default", envVar)
}

// Serve runs the bot until ctx is cancelled: bootstrap, dispatcher, runner,
// transport and the optional ops API.
func Serve(ctx context.Context, opts Options) error {
	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = coreconfig.Load
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}
	newTransport := opts.NewTransport
	if newTransport == nil {
		newTransport = func(cfg *coreconfig.Config, cmds []dispatch.Command) (Transport, error) {
			return coretelegram.New(cfg, cmds, coretelegram.Options{})
		}
	}
	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}

	cfgPath, err := ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar, opts.DefaultConfigPath)
	if err != nil {
		return err
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	startedAt := time.Now()
	res, err := boot(ctx, bootstrap.Options{
		Config:  cfg,
		Modules: bootstrap.Modules{Seeders: []bootstrap.Seeder{bootstrap.CatalogSeeder(cfg.Inventory.Seed)}},
	})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	gate, err := auth.NewGate(cfg.Auth)
	if err != nil {
		return fmt.Errorf("cmd: auth gate: %w", err)
	}
	sessions := session.NewMemoryManager(cfg.Session.Timeout())
	dispatcher := dispatch.New(res.Store, res.Feedback, sessions, gate, dispatch.Config{
		LowStockThreshold: cfg.Inventory.Threshold(),
		AuditPageSize:     cfg.Inventory.AuditPageSize,
	})

	transport, err := newTransport(cfg, dispatch.Commands())
	if err != nil {
		return fmt.Errorf("cmd: telegram transport: %w", err)
	}
	defer transport.Close()

	runner := dispatch.NewRunner(dispatcher, transport, dispatch.RunnerOptions{
		SweepInterval: cfg.Session.SweepInterval(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			// one component stopping takes the rest down
			cancel()
		}()
	}

	spawn("transport", transport.Run)
	spawn("runner", func(ctx context.Context) error { return runner.Run(ctx, transport.Events()) })
	if cfg.HTTP.Listen != "" {
		router := httpapi.NewRouter(res.Store, res.Repo, cfg.Inventory.AuditPageSize)
		spawn("http", func(ctx context.Context) error { return httpapi.Serve(ctx, cfg.HTTP.Listen, router) })
	}

	logger.Info(ctx, "app", "app.ready",
		slog.String("status", "ok"),
		slog.Bool("http", cfg.HTTP.Listen != ""),
		slog.Duration("startup_duration", logger.Took(startedAt)),
	)

	<-ctx.Done()
	wg.Wait()
	err = errors.Join(errs...)
	logger.Info(context.Background(), "app", "app.shutdown",
		slog.String("status", logger.Status(err)),
		logger.Err(err),
	)
	return err
}
