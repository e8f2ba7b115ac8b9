// Package embedding wraps a remote OpenAI-compatible embeddings endpoint
// behind the domain.Embedder interface.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docchat/internal/domain"
)

const (
	// DefaultBaseURL is the DashScope OpenAI-compatible endpoint.
	DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultModel   = "text-embedding-v3"
	DefaultTimeout = 60 * time.Second
)

// Config configures the embeddings client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls a remote embeddings endpoint. One outbound network call per
// Embed; no batching or retries, so behavior stays predictable for the
// caller.
type Client struct {
	api   *openai.Client
	model string

	mu        sync.Mutex
	dimension int
}

// NewClient creates an embeddings client. The API key is a hard
// precondition: without one the client is never constructed and callers
// must hold off until a credential is supplied.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.ConfigError{Msg: "embedding API key is empty"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: cfg.Model,
	}, nil
}

// Embed returns the embedding vector for text. Empty text is rejected
// before the network call. The vector dimensionality is latched on the
// first successful call and enforced afterwards.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &domain.ServiceError{Service: "embedding", Err: errors.New("empty text")}
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, &domain.ServiceError{Service: "embedding", Err: err}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &domain.ServiceError{Service: "embedding", Err: errors.New("no embedding returned")}
	}

	vec := resp.Data[0].Embedding

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = len(vec)
	} else if len(vec) != c.dimension {
		return nil, &domain.ServiceError{
			Service: "embedding",
			Err:     fmt.Errorf("dimension changed from %d to %d", c.dimension, len(vec)),
		}
	}
	return vec, nil
}

// Dimension returns the latched output dimensionality, 0 before the first
// successful Embed.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

func (c *Client) ModelName() string { return c.model }
