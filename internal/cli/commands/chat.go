package commands

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/cli/repl"
)

const banner = "askdb: pregunte sobre el inventario o escriba 'salir' para terminar."

type chatOptions struct {
	NoColor   bool
	NoHistory bool
}

func newChatCommand(rt *runtime) *cobra.Command {
	opts := chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive console",
		Example: `  # Ask questions until "salir"
  askdb chat

  # Show the generated SQL for every answer
  askdb chat --debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, rt, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not keep a history file")

	return cmd
}

func runChat(cmd *cobra.Command, rt *runtime, opts chatOptions) error {
	ctx := cmd.Context()
	app, err := rt.open(ctx, true)
	if err != nil {
		return err
	}
	defer rt.closeApp(ctx, app)

	var reader repl.LineReader
	if rt.opts.Stdin != nil {
		reader = newScanReader(rt.opts.Stdin)
	} else {
		rl, err := repl.NewLineReader("", historyFile(opts.NoHistory))
		if err != nil {
			return err
		}
		reader = rl
	}

	return repl.Run(ctx, app.Orchestrator, repl.Options{
		Reader:  reader,
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
		Debug:   rt.cfg.Debug,
		NoColor: opts.NoColor,
		Banner:  banner,
	})
}

func historyFile(disabled bool) string {
	if disabled {
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".askdb_history")
}

// scanReader feeds the console from a plain stream.
type scanReader struct {
	src     io.ReadCloser
	scanner *bufio.Scanner
}

func newScanReader(src io.ReadCloser) *scanReader {
	return &scanReader{src: src, scanner: bufio.NewScanner(src)}
}

func (r *scanReader) Readline() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error {
	return r.src.Close()
}
