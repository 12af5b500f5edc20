// Package api exposes the question pipeline and the record store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/records"
	"github.com/askdb/askdb/internal/schema"
)

const rootMessage = "askdb server ready. Use the interactive console or POST /v1/ask to ask questions."

type ReadinessCheck func(ctx context.Context) error

// Asker answers one question. *pipeline.Orchestrator implements it.
type Asker interface {
	Handle(ctx context.Context, question string) pipeline.Response
}

// RecordAssistant applies a free-form record request.
type RecordAssistant interface {
	Do(ctx context.Context, request string) (string, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Asker             Asker
	Schema            schema.Provider
	Records           records.Store
	RecordAssistant   RecordAssistant
	// Auth, when set, guards questions and records behind operator keys.
	Auth auth.APIKeyValidator
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": rootMessage})
	})

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protect := func(role string, fn http.HandlerFunc) http.Handler {
		if deps.Auth == nil {
			return fn
		}
		return auth.Require(deps.Logger, deps.Auth, role, fn)
	}

	// one question in flight at a time
	var askMu sync.Mutex
	mux.Handle("POST /v1/ask", protect(auth.RoleAsk, func(w http.ResponseWriter, r *http.Request) {
		askMu.Lock()
		defer askMu.Unlock()
		handleAsk(deps, w, r)
	}))
	mux.Handle("GET /v1/schema", protect(auth.RoleAsk, func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	}))

	mux.Handle("POST /v1/records", protect(auth.RoleRecords, func(w http.ResponseWriter, r *http.Request) {
		handleAddRecord(deps, w, r)
	}))
	mux.Handle("POST /v1/records/do", protect(auth.RoleRecords, func(w http.ResponseWriter, r *http.Request) {
		handleRecordRequest(deps, w, r)
	}))
	mux.Handle("GET /v1/records/{id}", protect(auth.RoleRecords, func(w http.ResponseWriter, r *http.Request) {
		handleGetRecord(deps, w, r)
	}))
	mux.Handle("DELETE /v1/records/{id}", protect(auth.RoleRecords, func(w http.ResponseWriter, r *http.Request) {
		handleDeleteRecord(deps, w, r)
	}))

	middlewares := []func(http.Handler) http.Handler{
		observability.RequestIDMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckDatabaseURL(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Database.URL == "" {
			return errors.New("database url is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, into any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.RequestIDFromContext(ctx),
	})
}
