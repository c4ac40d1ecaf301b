// Package completion wraps the external text-completion provider.
package completion

import (
	"context"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/metrics"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "mistralai/mistral-7b-instruct:free"
	DefaultPlaceholder = "todo"
	defaultTimeout     = 60 * time.Second
)

// Gateway sends single-turn prompts to an OpenAI-compatible chat endpoint.
type Gateway struct {
	client      *openai.Client
	model       string
	placeholder string
	logger      *zap.Logger
}

type Option func(*openai.ClientConfig)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *openai.ClientConfig) {
		c.HTTPClient = client
	}
}

func NewGateway(cfg utils.CompletionConfig, logger *zap.Logger, opts ...Option) *Gateway {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	for _, opt := range opts {
		opt(&clientCfg)
	}

	return &Gateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		placeholder: placeholder,
		logger:      utils.OrNop(logger),
	}
}

// Complete sends prompt as the only user message and returns the first
// choice's text. A reply without usable text yields the placeholder instead of
// an error; transport and protocol failures are upstream errors.
func (g *Gateway) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		metrics.RecordCompletion(g.model, "error", time.Since(start).Seconds())
		g.logger.Warn("completion request failed", zap.String("model", g.model), zap.Error(err))
		return "", apperr.Upstream("completion request failed", err)
	}
	metrics.RecordCompletion(g.model, "ok", time.Since(start).Seconds())

	g.logger.Debug("completion received",
		zap.String("id", resp.ID),
		zap.String("model", resp.Model),
		zap.Int("choices", len(resp.Choices)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	if len(resp.Choices) == 0 {
		return g.placeholder, nil
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return g.placeholder, nil
	}

	return content, nil
}
