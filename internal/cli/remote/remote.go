// Package remote talks to a running askdb server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "http://localhost:8080"

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// StatusError is returned for 4xx and 5xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: durationOr(opts.Timeout, 2*time.Minute)}
	}
	return &Client{
		baseURL: strings.TrimRight(firstNonEmpty(opts.BaseURL, DefaultBaseURL), "/"),
		apiKey:  strings.TrimSpace(opts.APIKey),
		http:    client,
	}
}

// AskResult mirrors the body of POST /v1/ask.
type AskResult struct {
	Answer    string   `json:"answer"`
	Intent    string   `json:"intent"`
	SQL       string   `json:"sql"`
	Validated bool     `json:"validated"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
	Outcome   string   `json:"outcome"`
	RequestID string   `json:"request_id"`
}

func (c *Client) Ask(ctx context.Context, question string) (AskResult, error) {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return AskResult{}, err
	}
	body, err := c.Do(ctx, http.MethodPost, "/v1/ask", payload)
	if err != nil {
		return AskResult{}, err
	}
	var result AskResult
	if err := json.Unmarshal(body, &result); err != nil {
		return AskResult{}, fmt.Errorf("decode ask response: %w", err)
	}
	return result, nil
}

// Do sends one request and returns the body of a 2xx reply.
func (c *Client) Do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// PrettyJSON indents raw when it is valid JSON.
func PrettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
