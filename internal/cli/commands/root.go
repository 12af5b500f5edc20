// Package commands implements the askdb command line: the interactive
// console, one-shot questions, record maintenance, the HTTP server and the
// audit archive tools.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/storage"
)

// Version is set at build time.
var Version = "0.1.0"

const serviceName = "askdb"

// Options make the command tree testable. Zero values use the process
// environment and the real database, model and object store.
type Options struct {
	// Lookup replaces the environment when loading configuration.
	Lookup config.LookupFunc
	// OpenApp replaces OpenApp.
	OpenApp func(ctx context.Context, cfg config.Config, logger *slog.Logger, withModel bool) (*App, error)
	// OpenStore replaces OpenAuditStore.
	OpenStore func(ctx context.Context, cfg config.Config) (storage.ObjectStore, error)
	// Stdin feeds the console when it is not a terminal.
	Stdin io.ReadCloser
}

type runtime struct {
	opts   Options
	debug  bool
	cfg    config.Config
	logger *slog.Logger
}

func NewRootCmd(opts Options) *cobra.Command {
	if opts.OpenApp == nil {
		opts.OpenApp = OpenApp
	}
	if opts.OpenStore == nil {
		opts.OpenStore = OpenAuditStore
	}
	rt := &runtime{opts: opts}

	rootCmd := &cobra.Command{
		Use:   "askdb",
		Short: "Ask an inventory database questions in plain language",
		Long: `askdb turns questions in Spanish or English into a single read-only SQL
query, runs it under a row cap and answers in the language of the question.

Without a subcommand it starts the interactive console.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return rt.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, rt, chatOptions{})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Echo generated SQL and failure causes")

	rootCmd.AddCommand(newChatCommand(rt))
	rootCmd.AddCommand(newAskCommand(rt))
	rootCmd.AddCommand(newRecordsCommand(rt))
	rootCmd.AddCommand(newServeCommand(rt))
	rootCmd.AddCommand(newSchemaCommand(rt))
	rootCmd.AddCommand(newAuditCommand(rt))
	rootCmd.AddCommand(newRemoteCommand())

	return rootCmd
}

// Execute runs the command tree against the process environment.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd(Options{})
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func (rt *runtime) load(cmd *cobra.Command) error {
	var (
		cfg config.Config
		err error
	)
	if rt.opts.Lookup != nil {
		cfg, err = config.Load(serviceName, rt.opts.Lookup)
	} else {
		cfg, err = config.LoadFromEnv(serviceName)
	}
	if err != nil {
		return err
	}
	if rt.debug {
		cfg.Debug = true
		cfg.Observability.LogLevel = slog.LevelDebug
	}
	rt.cfg = cfg
	rt.logger = observability.NewLogger(cfg, cmd.ErrOrStderr())
	return nil
}

func (rt *runtime) open(ctx context.Context, withModel bool) (*App, error) {
	return rt.opts.OpenApp(ctx, rt.cfg, rt.logger, withModel)
}

// closeApp flushes with a context detached from cancellation so pending
// audit entries survive Ctrl-C.
func (rt *runtime) closeApp(ctx context.Context, app *App) {
	if err := app.Close(context.WithoutCancel(ctx)); err != nil {
		rt.logger.Warn("shutdown incomplete", slog.Any("error", err))
	}
}
