package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/pipeline"
)

type askOptions struct {
	JSON bool
}

type askOutput struct {
	RequestID string   `json:"request_id"`
	Answer    string   `json:"answer"`
	Intent    string   `json:"intent"`
	SQL       string   `json:"sql,omitempty"`
	Validated bool     `json:"validated"`
	Outcome   string   `json:"outcome"`
	Columns   []string `json:"columns,omitempty"`
	Rows      [][]any  `json:"rows,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
}

func newAskCommand(rt *runtime) *cobra.Command {
	opts := askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a single question and exit",
		Example: `  askdb ask "¿cuántas mesas quedan en stock?"
  askdb ask --json "top 5 products by quantity"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question must not be empty")
			}
			app, err := rt.open(ctx, true)
			if err != nil {
				return err
			}
			defer rt.closeApp(ctx, app)

			resp := app.Orchestrator.Handle(ctx, question)
			out := cmd.OutOrStdout()
			if opts.JSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(newAskOutput(resp))
			}
			if rt.cfg.Debug {
				if resp.SQL != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", resp.RequestID, resp.SQL)
				}
				if resp.Failure != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %v\n", resp.RequestID, resp.Failure)
				}
			}
			_, err = fmt.Fprintln(out, resp.Text)
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the full response as JSON")

	return cmd
}

func newAskOutput(resp pipeline.Response) askOutput {
	out := askOutput{
		RequestID: resp.RequestID,
		Answer:    resp.Text,
		Intent:    resp.Intent.String(),
		SQL:       resp.SQL,
		Validated: resp.Validated,
		Outcome:   pipeline.Outcome(resp),
	}
	if resp.Result != nil {
		out.Columns = resp.Result.Columns
		out.Rows = resp.Result.Rows
		out.Truncated = resp.Result.Truncated
	}
	return out
}
