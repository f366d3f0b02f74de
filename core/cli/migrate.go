package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	coredatabase "github.com/m3rciful/stockbot/core/database"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply pending database migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOffline(rootOpts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := coredatabase.Connect(ctx, cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to connect", err)
			}
			defer db.Close()

			if err := coredatabase.RunMigrations(ctx, db, cfg.Database.Driver); err != nil {
				return WrapExitError(ExitFailure, "migration failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}
