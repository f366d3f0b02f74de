package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Limit  int
	Format string // "text" | "json"
}

type auditRecord struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	ActorID           string    `json:"actor_id"`
	ItemID            string    `json:"item_id"`
	Action            string    `json:"action"`
	Delta             int64     `json:"delta"`
	ResultingQuantity int64     `json:"resulting_quantity"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "audit",
		Short:         "Show recent catalog changes, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "entries to show")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	return cmd
}

func runAudit(cmd *cobra.Command, opts *AuditOptions) error {
	if opts.Format != "text" && opts.Format != "json" {
		return WrapExitError(ExitCommandError, "invalid format", fmt.Errorf("%q: must be text or json", opts.Format))
	}
	if opts.Limit <= 0 {
		return WrapExitError(ExitCommandError, "invalid limit", fmt.Errorf("%d: must be > 0", opts.Limit))
	}

	ctx := cmd.Context()
	res, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer res.Close()

	entries, err := res.Store.AuditTrail(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read audit log", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		records := make([]auditRecord, 0, len(entries))
		for _, e := range entries {
			records = append(records, auditRecord{
				ID:                e.ID,
				Timestamp:         e.Timestamp.UTC(),
				ActorID:           e.ActorID,
				ItemID:            e.ItemID,
				Action:            string(e.Action),
				Delta:             e.Delta,
				ResultingQuantity: e.ResultingQuantity,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No changes recorded yet.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tITEM\tDELTA\tQUANTITY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%+d\t%d\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.ActorID, e.Action, e.ItemID, e.Delta, e.ResultingQuantity)
	}
	return tw.Flush()
}
