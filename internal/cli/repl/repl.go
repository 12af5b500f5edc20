// Package repl is the interactive console: one question per line, one answer
// per question.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/askdb/askdb/internal/pipeline"
)

const defaultPrompt = "askdb> "

// ExitWords end the session, compared case-insensitively.
var ExitWords = []string{"salir", "exit", "quit", "adios", "adiós"}

type Asker interface {
	Handle(ctx context.Context, question string) pipeline.Response
}

// LineReader is the subset of *readline.Instance the loop needs.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

type Options struct {
	Reader LineReader
	Out    io.Writer
	Err    io.Writer
	// Debug echoes the generated SQL and the failure cause before the answer.
	Debug   bool
	NoColor bool
	Banner  string
}

// NewLineReader opens a readline instance on the terminal. historyFile may
// be empty.
func NewLineReader(prompt, historyFile string) (*readline.Instance, error) {
	if prompt == "" {
		prompt = defaultPrompt
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          color.New(color.FgCyan, color.Bold).Sprint(prompt),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "salir",
	})
	if err != nil {
		return nil, fmt.Errorf("initialize console: %w", err)
	}
	return rl, nil
}

// Run reads questions until an exit word, EOF or ctx cancellation.
func Run(ctx context.Context, asker Asker, opts Options) error {
	if opts.Reader == nil {
		return errors.New("line reader is required")
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	errOut := opts.Err
	if errOut == nil {
		errOut = out
	}
	defer func() { _ = opts.Reader.Close() }()

	faint := color.New(color.Faint)
	warn := color.New(color.FgYellow)
	if opts.NoColor {
		faint.DisableColor()
		warn.DisableColor()
	}

	if opts.Banner != "" {
		_, _ = fmt.Fprintln(out, opts.Banner)
		_, _ = fmt.Fprintln(out)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := opts.Reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}
		if IsExitWord(question) {
			return nil
		}

		resp := asker.Handle(ctx, question)
		if opts.Debug {
			if resp.SQL != "" {
				_, _ = faint.Fprintf(errOut, "[%s] %s\n", resp.RequestID, resp.SQL)
			}
			if resp.Failure != nil {
				_, _ = warn.Fprintf(errOut, "[%s] %v\n", resp.RequestID, resp.Failure)
			}
		}
		_, _ = fmt.Fprintln(out, resp.Text)
		_, _ = fmt.Fprintln(out)
	}
}

func IsExitWord(text string) bool {
	text = strings.TrimSpace(text)
	for _, word := range ExitWords {
		if strings.EqualFold(text, word) {
			return true
		}
	}
	return false
}
