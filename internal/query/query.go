// Package query is the contract between the question pipeline and a read-only
// engine. Requests only carry statements that passed sqlguard, and engine
// failures are classified by ErrorKind.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/askdb/askdb/internal/sqlguard"
)

// Request carries a guarded query. There is no way to execute raw text.
type Request struct {
	Query    sqlguard.Validated
	RowLimit int
}

type Result struct {
	Columns []string
	Rows    [][]any
	// Truncated is set when the statement had more rows than the limit.
	Truncated bool
	Duration  time.Duration
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindStatement  ErrorKind = "statement"
	KindTimeout    ErrorKind = "timeout"
)

type ExecutionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

var ErrNotValidated = errors.New("query has not passed validation")

// KindOf returns the kind of an execution error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return ""
}
