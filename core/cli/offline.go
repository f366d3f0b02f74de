package cli

import (
	"context"

	"github.com/m3rciful/stockbot/core/bootstrap"
	corecmd "github.com/m3rciful/stockbot/core/cmd"
	coreconfig "github.com/m3rciful/stockbot/core/config"
)

// loadOffline reads the config without the settings only the bot needs.
func loadOffline(rootOpts *RootOptions) (*coreconfig.Config, error) {
	path, err := corecmd.ResolveConfigPath(rootOpts.ConfigPath, corecmd.DefaultConfigEnvVar, DefaultConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "no config", err)
	}
	cfg, err := coreconfig.Load(path, coreconfig.Offline())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore runs the bootstrap pipeline without logging setup or seeding, so
// command output on stdout stays clean.
func openStore(ctx context.Context, rootOpts *RootOptions) (*bootstrap.Result, error) {
	cfg, err := loadOffline(rootOpts)
	if err != nil {
		return nil, err
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     cfg,
		LoggerInit: func(*coreconfig.Config) error { return nil },
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return res, nil
}
