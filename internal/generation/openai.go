// Package generation drives streaming chat completions against an
// OpenAI-compatible endpoint.
package generation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docchat/internal/domain"
)

const (
	DefaultModel = "qwen3-max"
	// DefaultTimeout bounds the whole streamed response, not a single
	// fragment, so it is wider than the embedding timeout.
	DefaultTimeout = 120 * time.Second
)

// Config configures the generation client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client issues streaming chat-completion requests.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a generation client. Like the embedding client it is
// only constructed once a credential exists.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.ConfigError{Msg: "generation API key is empty"}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{api: openai.NewClientWithConfig(apiCfg), model: cfg.Model}, nil
}

// Stream starts a streaming completion over the given turns. Fragments
// arrive through the returned stream in generation order.
func (c *Client) Stream(ctx context.Context, turns []domain.Turn) (domain.GenerationStream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	s, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, &domain.ServiceError{Service: "generation", Err: err}
	}
	return &stream{inner: s}, nil
}

func (c *Client) ModelName() string { return c.model }

type stream struct {
	inner *openai.ChatCompletionStream
}

// Recv returns the next non-empty text fragment, io.EOF at end of stream,
// or a ServiceError on transport failure.
func (s *stream) Recv() (string, error) {
	for {
		resp, err := s.inner.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", &domain.ServiceError{Service: "generation", Err: err}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *stream) Close() error { return s.inner.Close() }
