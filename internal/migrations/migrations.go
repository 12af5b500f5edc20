// Package migrations owns the registro schema. Every supported dialect keeps
// its own scripts under sql/<dialect>/ with matching version numbers, and the
// applied versions are tracked in a ledger table on the target database.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql
var embeddedFS embed.FS

const ledgerTable = "askdb_schema_migrations"

var scriptName = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

// dialectSpec is what differs between backends outside the scripts.
type dialectSpec struct {
	ledgerDDL   string
	placeholder string
}

var dialects = map[string]dialectSpec{
	"postgres": {
		ledgerDDL:   `version BIGINT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
		placeholder: "$1",
	},
	"sqlite": {
		ledgerDDL:   `version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP`,
		placeholder: "?",
	},
	"duckdb": {
		ledgerDDL:   `version BIGINT PRIMARY KEY, applied_at TIMESTAMP DEFAULT current_timestamp`,
		placeholder: "?",
	},
}

type Runner struct {
	dialect string
	spec    dialectSpec
	fsys    fs.FS
}

func NewRunner(dialect string) (*Runner, error) {
	spec, ok := dialects[dialect]
	if !ok {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	fsys, err := fs.Sub(embeddedFS, path.Join("sql", dialect))
	if err != nil {
		return nil, fmt.Errorf("open migrations for dialect %q: %w", dialect, err)
	}
	return &Runner{dialect: dialect, spec: spec, fsys: fsys}, nil
}

// EnsureRecordStore brings the registro table up to the latest version. It is
// safe to call on every start.
func EnsureRecordStore(ctx context.Context, db *sql.DB, dialect string) (int, error) {
	runner, err := NewRunner(dialect)
	if err != nil {
		return 0, err
	}
	return runner.Up(ctx, db, 0)
}

type script struct {
	Version int64
	Up      string
	Down    string
}

// Status reports one known version and whether the ledger holds it.
type Status struct {
	Version int64
	Applied bool
}

func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	scripts, applied, err := r.prepare(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(scripts))
	for _, s := range scripts {
		_, ok := applied[s.Version]
		out = append(out, Status{Version: s.Version, Applied: ok})
	}
	return out, nil
}

// Up applies pending versions in ascending order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	scripts, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range scripts {
		if _, ok := applied[s.Version]; ok {
			continue
		}
		if steps > 0 && count >= steps {
			break
		}
		insert := `INSERT INTO ` + ledgerTable + ` (version) VALUES (` + r.spec.placeholder + `)`
		if err := r.step(ctx, db, s.Version, s.Up, insert); err != nil {
			return count, fmt.Errorf("apply migration %d: %w", s.Version, err)
		}
		count++
	}
	return count, nil
}

// Down rolls back applied versions newest first. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	scripts, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]script, len(scripts))
	for _, s := range scripts {
		byVersion[s.Version] = s
	}
	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	count := 0
	for _, version := range versions {
		if count >= steps {
			break
		}
		s, ok := byVersion[version]
		if !ok {
			return count, fmt.Errorf("applied migration %d is missing from the %s scripts", version, r.dialect)
		}
		remove := `DELETE FROM ` + ledgerTable + ` WHERE version = ` + r.spec.placeholder
		if err := r.step(ctx, db, version, s.Down, remove); err != nil {
			return count, fmt.Errorf("roll back migration %d: %w", version, err)
		}
		count++
	}
	return count, nil
}

// prepare loads the scripts, creates the ledger if needed and reads the
// applied set.
func (r *Runner) prepare(ctx context.Context, db *sql.DB) ([]script, map[int64]struct{}, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ledgerTable+` (`+r.spec.ledgerDDL+`)`); err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", ledgerTable, err)
	}
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+ledgerTable)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]struct{}{}
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", ledgerTable, err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	return scripts, applied, nil
}

// step runs one script and its ledger statement in a single transaction.
func (r *Runner) step(ctx context.Context, db *sql.DB, version int64, body, ledger string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ledger, version); err != nil {
		return fmt.Errorf("update %s: %w", ledgerTable, err)
	}
	return tx.Commit()
}

func loadScripts(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*script{}
	for _, entry := range entries {
		match := scriptName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version of %q: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", entry.Name(), err)
		}
		s, ok := byVersion[version]
		if !ok {
			s = &script{Version: version}
			byVersion[version] = s
		}
		if match[2] == "up" {
			s.Up = string(body)
		} else {
			s.Down = string(body)
		}
	}

	out := make([]script, 0, len(byVersion))
	for _, s := range byVersion {
		if strings.TrimSpace(s.Up) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", s.Version)
		}
		if strings.TrimSpace(s.Down) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", s.Version)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
