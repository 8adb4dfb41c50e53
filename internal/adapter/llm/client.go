// Package llm provides the OpenAI-compatible chat and embeddings client used
// for routing suggestions, query rewriting, answer generation, and retrieval
// index embeddings.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/resilience"
)

// ErrNotConfigured indicates the API key is missing. Callers surface this as
// a tool-level error field, never as a crash.
var ErrNotConfigured = errors.New("llm: api key not configured")

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Client wraps an OpenAI-compatible endpoint (SiliconFlow in the default
// deployment) for chat completions and embeddings.
type Client struct {
	api            *openai.Client
	configured     bool
	model          string
	routeModel     string
	embeddingModel string
	breaker        *resilience.Breaker
}

// NewClient creates a Client from the LLM config section.
func NewClient(cfg config.LLM) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	routeModel := cfg.RouteModel
	if routeModel == "" {
		routeModel = cfg.Model
	}

	return &Client{
		api:            openai.NewClientWithConfig(oc),
		configured:     cfg.APIKey != "",
		model:          cfg.Model,
		routeModel:     routeModel,
		embeddingModel: cfg.EmbeddingModel,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Chat sends the messages to the default chat model and returns the first
// choice's content.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	return c.chat(ctx, c.model, messages)
}

// ChatRoute is Chat against the routing model, which may be smaller and
// cheaper than the answering model.
func (c *Client) ChatRoute(ctx context.Context, messages []Message) (string, error) {
	return c.chat(ctx, c.routeModel, messages)
}

func (c *Client) chat(ctx context.Context, model string, messages []Message) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var content string
	call := func() error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    msgs,
			Temperature: 0.2,
			MaxTokens:   1024,
		})
		if err != nil {
			return fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("chat completion: empty choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := c.execute(call); err != nil {
		return "", err
	}
	return content, nil
}

// Embed embeds the texts with the configured embedding model.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}

	var vecs [][]float32
	call := func() error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("create embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
		}
		vecs = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vecs[i] = d.Embedding
		}
		return nil
	}

	if err := c.execute(call); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (c *Client) execute(call func() error) error {
	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}
