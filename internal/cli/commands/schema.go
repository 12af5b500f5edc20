package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/schema"
)

func newSchemaCommand(rt *runtime) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the tables and columns the model may query",
		Example: `  askdb schema
  askdb schema --file ./schema.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := rt.cfg.Pipeline.SchemaFile
			if file != "" {
				path = file
			}
			descriptor, err := schema.Load(path)
			if err != nil {
				return fmt.Errorf("load schema whitelist: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Table", "Column", "Description"})
			for _, tbl := range descriptor.Tables {
				if len(tbl.Columns) == 0 {
					t.AppendRow(table.Row{tbl.Name, "", tbl.Description})
					continue
				}
				for i, col := range tbl.Columns {
					name, description := "", col.Description
					if i == 0 {
						name = tbl.Name
					}
					t.AppendRow(table.Row{name, col.Name, description})
				}
				t.AppendSeparator()
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Schema whitelist file (default from ASKDB_SCHEMA_FILE)")

	return cmd
}
