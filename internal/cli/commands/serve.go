package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/auth"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	Addr string
}

func newServeCommand(rt *runtime) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question pipeline over HTTP",
		Example: `  askdb serve --addr :8080
  curl -s localhost:8080/v1/ask -d '{"question":"¿cuántas sillas hay?"}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default from ASKDB_HTTP_ADDR)")

	return cmd
}

func runServe(ctx context.Context, rt *runtime, opts serveOptions) error {
	cfg := rt.cfg
	if opts.Addr != "" {
		cfg.HTTP.Address = opts.Addr
	}
	logger := rt.logger

	app, err := rt.open(ctx, true)
	if err != nil {
		return err
	}
	defer rt.closeApp(ctx, app)

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(api.CheckDatabaseURL(cfg), app.Engine.Ping),
		DependencyTimeout: cfg.Database.Timeout,
		Asker:             app.Orchestrator,
		Schema:            app.Schema,
		Records:           app.Records,
		RecordAssistant:   app.Assistant,
	}
	if cfg.HTTP.APIKeys != "" {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.HTTP.APIKeys)
		if err != nil {
			return err
		}
		deps.Auth = validator
	} else {
		logger.Warn("ASKDB_API_KEYS is empty; the api is unauthenticated")
	}
	handler := api.NewHandler(cfg, deps)

	listener, err := net.Listen("tcp", cfg.HTTP.Address)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting api server", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("api server failed", slog.Any("error", err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		return err
	}
	return nil
}
