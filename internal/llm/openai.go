package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
		logger:      logger,
	}, nil
}

func (o *OpenAIClient) Model() string {
	return o.model
}

func (o *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("at least one message is required")
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: o.temperature,
	}
	for _, message := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}

	o.logger.DebugContext(ctx, "chat completion request", slog.String("model", o.model), slog.Int("messages", len(messages)))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	o.logger.DebugContext(ctx, "chat completion response",
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

var ErrNoChoices = errors.New("model returned no choices")

// StatusCode extracts the HTTP status of a failed API call, or 0 when the
// error did not come from an HTTP response.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
