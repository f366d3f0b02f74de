package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/stockbot/core/cmd"
)

// DefaultConfigPath is used when neither --config nor CONFIG_PATH is set.
const DefaultConfigPath = "config.yaml"

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Run the bot until SIGINT or SIGTERM.

Loads the config, connects to the database, applies migrations, seeds the
catalog and starts the Telegram transport. The read-only ops API starts
when http.listen is set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, rootOpts *RootOptions) error {
	err := corecmd.Serve(ctx, corecmd.Options{
		ConfigPath:        rootOpts.ConfigPath,
		ConfigEnvVar:      corecmd.DefaultConfigEnvVar,
		DefaultConfigPath: DefaultConfigPath,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "serve failed", err)
	}
	return nil
}
