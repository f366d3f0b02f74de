package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out   string
	Limit int
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [catalog|audit]",
		Short: "Write the catalog or the audit log as CSV",
		Long: `Write the catalog or the audit log as CSV.

Examples:
  stockbot export --config config.yaml
  stockbot export audit --limit 500 --out audit.csv`,
		Args:          cobra.MaximumNArgs(1),
		ValidArgs:     []string{"catalog", "audit"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			what := "catalog"
			if len(args) == 1 {
				what = args[0]
			}
			return runExport(cmd, opts, what)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "audit entries to export, 0 for all")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions, what string) (err error) {
	if what != "catalog" && what != "audit" {
		return WrapExitError(ExitCommandError, "invalid export target", fmt.Errorf("%q: must be catalog or audit", what))
	}

	ctx := cmd.Context()
	res, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer res.Close()

	var w io.Writer = cmd.OutOrStdout()
	if opts.Out != "" {
		f, ferr := os.Create(opts.Out)
		if ferr != nil {
			return WrapExitError(ExitCommandError, "failed to create output", ferr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = WrapExitError(ExitFailure, "failed to write output", cerr)
			}
		}()
		w = f
	}

	if what == "audit" {
		err = res.Store.ExportAudit(ctx, w, opts.Limit)
	} else {
		err = res.Store.ExportCatalog(w)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}
	return nil
}
