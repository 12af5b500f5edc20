// Package sqlexec executes guarded queries through database/sql.
package sqlexec

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/askdb/askdb/internal/query"
)

type Engine struct {
	db         *sql.DB
	timeout    time.Duration
	defaultCap int
	logger     *slog.Logger
}

type EngineConfig struct {
	// Timeout bounds connection acquisition, execution and scanning.
	Timeout time.Duration
	// RowCap applies when a request does not set RowLimit.
	RowCap int
}

func NewEngine(db *sql.DB, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RowCap <= 0 {
		cfg.RowCap = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, timeout: cfg.Timeout, defaultCap: cfg.RowCap, logger: logger}
}

// Execute runs one statement on a dedicated connection that is returned to
// the pool on every path. At most RowLimit rows are returned.
func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if request.Query.IsZero() {
		return query.Result{}, &query.ExecutionError{Kind: query.KindStatement, Err: query.ErrNotValidated}
	}
	if e.db == nil {
		return query.Result{}, &query.ExecutionError{Kind: query.KindConnection, Err: fmt.Errorf("database is not configured")}
	}
	limit := request.RowLimit
	if limit <= 0 {
		limit = e.defaultCap
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return query.Result{}, classify(ctx, query.KindConnection, fmt.Errorf("acquire connection: %w", err))
	}
	defer func() { _ = conn.Close() }()

	sqlText := wrapWithLimit(request.Query.SQL(), limit)
	e.logger.DebugContext(ctx, "executing query", slog.String("sql", sqlText), slog.Int("row_limit", limit))

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, classify(ctx, query.KindStatement, fmt.Errorf("execute query: %w", err))
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, classify(ctx, query.KindStatement, fmt.Errorf("query columns: %w", err))
	}

	resultRows := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if len(resultRows) == limit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, classify(ctx, query.KindStatement, fmt.Errorf("scan row: %w", err))
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, classify(ctx, query.KindStatement, fmt.Errorf("iterate rows: %w", err))
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

// Ping reports whether a connection can be acquired.
func (e *Engine) Ping(ctx context.Context) error {
	if e.db == nil {
		return fmt.Errorf("database is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.db.PingContext(ctx)
}

// wrapWithLimit asks the database for one row past the cap so truncation can
// be detected. The newline keeps a trailing line comment from swallowing the
// closing parenthesis.
func wrapWithLimit(sqlText string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (\n%s\n) AS q LIMIT %d", sqlText, limit+1)
}

func classify(ctx context.Context, kind query.ErrorKind, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = query.KindTimeout
	case errors.Is(err, driver.ErrBadConn):
		kind = query.KindConnection
	}
	return &query.ExecutionError{Kind: kind, Err: err}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
