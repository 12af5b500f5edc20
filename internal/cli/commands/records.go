package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/records"
)

func newRecordsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Maintain free-text records",
		Long: `Add, read and delete rows of the records table. "records do" lets the model
interpret a free-form request such as "agrega un registro que diga hola".`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <texto...>",
		Short: "Store a new record",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			texto := strings.TrimSpace(strings.Join(args, " "))
			if texto == "" {
				return fmt.Errorf("texto must not be empty")
			}
			return applyRecordAction(cmd, rt, records.Action{Kind: records.ActionAdd, Texto: texto})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return applyRecordAction(cmd, rt, records.Action{Kind: records.ActionGet, ID: id})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return applyRecordAction(cmd, rt, records.Action{Kind: records.ActionDelete, ID: id})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "do <request...>",
		Short:   "Let the model interpret a free-form record request",
		Example: `  askdb records do "obtén el registro 3"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := rt.open(ctx, true)
			if err != nil {
				return err
			}
			defer rt.closeApp(ctx, app)

			reply, err := app.Assistant.Do(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		},
	})

	return cmd
}

func applyRecordAction(cmd *cobra.Command, rt *runtime, action records.Action) error {
	ctx := cmd.Context()
	app, err := rt.open(ctx, false)
	if err != nil {
		return err
	}
	defer rt.closeApp(ctx, app)

	reply, err := records.Apply(ctx, app.Records, action)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
	return err
}

func parseRecordID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", raw)
	}
	return id, nil
}
