// Package nl2sql turns a composed prompt into candidate SQL text.
package nl2sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/askdb/askdb/internal/llm"
)

// GeneratedQuery is the model's output before the guard has looked at it.
// Validated is only ever set from a guard verdict.
type GeneratedQuery struct {
	Raw       string
	Cleaned   string
	Validated bool
}

var ErrEmptySQL = errors.New("model returned empty SQL")

type Generator struct {
	client llm.Client
}

func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

// Generate performs exactly one model call through the configured client.
func (g *Generator) Generate(ctx context.Context, messages []llm.Message) (GeneratedQuery, error) {
	if g.client == nil {
		return GeneratedQuery{}, fmt.Errorf("model client is not configured")
	}
	raw, err := g.client.Complete(ctx, messages)
	if err != nil {
		return GeneratedQuery{}, fmt.Errorf("generate sql: %w", err)
	}
	cleaned := Extract(raw)
	if cleaned == "" {
		return GeneratedQuery{Raw: raw}, ErrEmptySQL
	}
	return GeneratedQuery{Raw: raw, Cleaned: cleaned}, nil
}
