package commands

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/audit"
)

const dateLayout = "2006-01-02"

func newAuditCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the question history archive",
		Long: `Archived batches are Parquet files under audit/date=YYYY-MM-DD/ in the
configured bucket (ASKDB_AUDIT_*).`,
	}

	cmd.AddCommand(newAuditListCommand(rt))
	cmd.AddCommand(newAuditShowCommand(rt))
	cmd.AddCommand(newAuditPruneCommand(rt))

	return cmd
}

func newAuditListCommand(rt *runtime) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:     "ls",
		Short:   "List archived batches",
		Example: `  askdb audit ls --date 2026-02-19`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var day time.Time
			if date != "" {
				parsed, err := time.Parse(dateLayout, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
				day = parsed
			}
			ctx := cmd.Context()
			store, err := rt.opts.OpenStore(ctx, rt.cfg)
			if err != nil {
				return err
			}
			objects, err := audit.ListBatches(ctx, store, day)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Key", "Size", "Last Modified"})
			for _, object := range objects {
				modified := ""
				if !object.LastModified.IsZero() {
					modified = object.LastModified.UTC().Format(time.RFC3339)
				}
				t.AppendRow(table.Row{object.Key, object.Size, modified})
			}
			t.AppendFooter(table.Row{"", len(objects), ""})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Only list batches of this UTC day (YYYY-MM-DD)")

	return cmd
}

func newAuditShowCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Print the entries of one archived batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := rt.opts.OpenStore(ctx, rt.cfg)
			if err != nil {
				return err
			}
			entries, err := audit.ReadBatch(ctx, store, args[0])
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"At", "Request", "Intent", "Outcome", "Rows", "Ms", "Question", "SQL"})
			for _, entry := range entries {
				rows := strconv.Itoa(entry.Rows)
				if entry.Truncated {
					rows += "+"
				}
				t.AppendRow(table.Row{
					entry.At.UTC().Format(time.RFC3339),
					entry.RequestID,
					entry.Intent,
					entry.Outcome,
					rows,
					entry.DurationMs,
					entry.Question,
					entry.SQL,
				})
			}
			t.Render()
			return nil
		},
	}
}

func newAuditPruneCommand(rt *runtime) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete archived batches older than a retention window",
		Example: `  askdb audit prune --older-than 2160h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			ctx := cmd.Context()
			store, err := rt.opts.OpenStore(ctx, rt.cfg)
			if err != nil {
				return err
			}
			cutoff := time.Now().UTC().Add(-olderThan)
			deleted, err := audit.Prune(ctx, store, cutoff)
			if err != nil {
				return err
			}
			rt.logger.Info("pruned audit archive", slog.Int("deleted", deleted), slog.String("cutoff", cutoff.Format(dateLayout)))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d batches before %s\n", deleted, cutoff.Format(dateLayout))
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Retention window")

	return cmd
}
