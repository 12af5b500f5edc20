package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/internal/audit"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/intent"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/migrations"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/query/sqlexec"
	"github.com/askdb/askdb/internal/records"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/sqlguard"
	"github.com/askdb/askdb/internal/storage"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

// App holds the collaborators built from one configuration.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	DB           *sql.DB
	Dialect      sqlexec.Dialect
	Engine       *sqlexec.Engine
	Schema       schema.Provider
	Model        llm.Client
	Orchestrator *pipeline.Orchestrator
	Records      records.Store
	Assistant    *records.Assistant

	recorder *audit.Recorder
}

// OpenApp connects to the database and, when withModel is set, builds the
// model client and the question pipeline.
func OpenApp(ctx context.Context, cfg config.Config, logger *slog.Logger, withModel bool) (*App, error) {
	if withModel {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else if strings.TrimSpace(cfg.Database.URL) == "" {
		return nil, &config.MissingError{Keys: []string{"ASKDB_DATABASE_URL (or DATABASE_URL)"}}
	}

	descriptor, err := schema.Load(cfg.Pipeline.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("load schema whitelist: %w", err)
	}

	db, dialect, err := sqlexec.Open(ctx, sqlexec.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		PingTimeout:     cfg.Database.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		applied, err := migrations.EnsureRecordStore(ctx, db, string(dialect))
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare record store: %w", err)
		}
		if applied > 0 {
			logger.Info("record store migrated", "dialect", dialect, "applied", applied)
		}
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Dialect: dialect,
		Engine:  sqlexec.NewEngine(db, sqlexec.EngineConfig{Timeout: cfg.Database.Timeout, RowCap: cfg.Pipeline.RowCap}, logger),
		Schema:  schema.NewStatic(descriptor),
		Records: records.NewRepository(db),
	}
	if !withModel {
		return app, nil
	}

	model, err := newModelClient(cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.Model = model
	app.Assistant = records.NewAssistant(model, app.Records)

	var sink audit.Sink = audit.Nop{}
	if cfg.Audit.Enabled {
		store, err := OpenAuditStore(ctx, cfg)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		recorder, err := audit.NewRecorder(store, audit.RecorderConfig{BatchSize: cfg.Audit.BatchSize}, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		app.recorder = recorder
		sink = recorder
	}

	app.Orchestrator, err = pipeline.New(pipeline.Deps{
		Classifier: intent.NewClassifier(cfg.Pipeline.ExtraIntentKeywords...),
		Schema:     app.Schema,
		SQLPrompt:  prompt.NewComposer(prompt.SQLStrategy{RowCap: cfg.Pipeline.RowCap, Dialect: string(dialect)}),
		ChatPrompt: prompt.NewComposer(prompt.ChatStrategy{}),
		Model:      model,
		Validator:  sqlguard.NewValidator(cfg.Pipeline.ExtraDenyKeywords...),
		Engine:     app.Engine,
		Audit:      sink,
		Logger:     logger,
		RowCap:     cfg.Pipeline.RowCap,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// Close flushes the audit archive and releases the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.recorder != nil {
		if err := a.recorder.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newModelClient(cfg config.Config, logger *slog.Logger) (llm.Client, error) {
	base, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize model client: %w", err)
	}
	return llm.NewRetryingClient(base, llm.RetryConfig{
		MaxRetries: cfg.AI.MaxRetries,
		Backoff:    cfg.AI.RetryBackoff,
		RateLimit:  cfg.AI.RateLimit,
	}, logger), nil
}

// OpenAuditStore opens the object store configured for the audit archive.
func OpenAuditStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if strings.TrimSpace(cfg.Audit.Bucket) == "" {
		return nil, &config.MissingError{Keys: []string{"ASKDB_AUDIT_BUCKET"}}
	}
	store, err := s3store.New(ctx, s3store.ConfigFromAudit(cfg.Audit))
	if err != nil {
		return nil, fmt.Errorf("initialize audit store: %w", err)
	}
	return store, nil
}
