package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
)

type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// ParseURL maps a connection string to a registered driver and its DSN.
// sqlite:/// and duckdb:/// follow the SQLAlchemy convention: three slashes
// for a relative path, four for an absolute one.
func ParseURL(raw string) (Dialect, string, string, error) {
	url := strings.TrimSpace(raw)
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, "pgx", url, nil
	case strings.HasPrefix(lower, "sqlite://"):
		path := localPath(url[len("sqlite://"):])
		if path == "" {
			path = ":memory:"
		}
		return DialectSQLite, "sqlite", path, nil
	case strings.HasPrefix(lower, "file:"):
		return DialectSQLite, "sqlite", url, nil
	case strings.HasPrefix(lower, "duckdb://"):
		return DialectDuckDB, "duckdb", localPath(url[len("duckdb://"):]), nil
	case url == "":
		return "", "", "", fmt.Errorf("database url is required")
	default:
		return "", "", "", fmt.Errorf("unsupported database url scheme in %q", redact(url))
	}
}

func localPath(rest string) string {
	return strings.TrimPrefix(rest, "/")
}

// Open opens and pings the database named by cfg.URL.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, Dialect, error) {
	dialect, driverName, dsn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s db: %w", dialect, err)
	}
	switch {
	case dialect == DialectSQLite && dsn == ":memory:":
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s db: %w", dialect, err)
	}
	return db, dialect, nil
}

// redact drops the password from URLs echoed in errors.
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	userinfo := url[scheme+3 : at]
	if colon := strings.IndexByte(userinfo, ':'); colon >= 0 {
		return url[:scheme+3] + userinfo[:colon] + ":***" + url[at:]
	}
	return url
}
